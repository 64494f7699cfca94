// Package portal automates the merchant portal: signing in and running the
// per-identifier verification transaction for a batch.
package portal

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	DefaultLoginURL  = "https://subsiditepatlpg.mypertamina.id/merchant-login"
	DefaultVerifyURL = "https://subsiditepatlpg.mypertamina.id/merchant/app/verification-nik"
)

// Selectors locate the portal controls. Alert and Dialog are containers whose
// text is matched against Markers.
type Selectors struct {
	Username          string
	Password          string
	LoginSubmit       string
	IdentifierInput   string
	IdentifierSubmit  string
	CustomerPanel     string
	AddItem           string
	CheckOrder        string
	Pay               string
	Alert             string
	Dialog            string
	AmbiguousContinue string
	UpdateContinue    string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Username:          `input[id="mantine-r0"]`,
		Password:          `input[id="mantine-r1"]`,
		LoginSubmit:       `button[type="submit"]`,
		IdentifierInput:   `input[id="mantine-r2"]`,
		IdentifierSubmit:  `button[type="submit"]`,
		CustomerPanel:     `[class*="infoPelangganSubsidi"]`,
		AddItem:           `button[data-testid="actionIcon2"]`,
		CheckOrder:        `button[data-testid="btnCheckOrder"]`,
		Pay:               `button[data-testid="btnPay"]`,
		Alert:             `[role="alert"], .mantine-Notification-root`,
		Dialog:            `[role="dialog"]`,
		AmbiguousContinue: `[role="dialog"] button[data-testid="btnContinue"]`,
		UpdateContinue:    `[role="dialog"] button[data-testid="btnContinueTransaction"]`,
	}
}

// settled matches any element the portal renders once a submitted identifier
// has been answered.
func (s Selectors) settled() string {
	return s.Alert + ", " + s.Dialog + ", " + s.CustomerPanel
}

// Markers classify alert and dialog texts.
type Markers struct {
	RateLimit      *regexp.Regexp
	NotFound       *regexp.Regexp
	Ambiguous      *regexp.Regexp
	UpdateRequired *regexp.Regexp
	QuotaExceeded  *regexp.Regexp
	StockExhausted *regexp.Regexp
}

func DefaultMarkers() Markers {
	return Markers{
		RateLimit:      regexp.MustCompile(`(?i)(tunggu|coba lagi dalam|please wait|retry in)[^0-9]*\d{1,3}:[0-5]\d`),
		NotFound:       regexp.MustCompile(`(?i)(tidak terdaftar|tidak ditemukan|tidak valid|not found)`),
		Ambiguous:      regexp.MustCompile(`(?i)(pilih (salah satu|pelanggan)|lebih dari satu)`),
		UpdateRequired: regexp.MustCompile(`(?i)(perbarui|pembaruan data|update data)`),
		QuotaExceeded:  regexp.MustCompile(`(?i)(melebihi batas( kewajaran| wajar)?|exceeds reasonable limit)`),
		StockExhausted: regexp.MustCompile(`(?i)(stok[^.]*habis|stock (is )?exhausted)`),
	}
}

var waitClockPattern = regexp.MustCompile(`(\d{1,3}):([0-5]\d)`)

// parseWait extracts the first MM:SS duration from a rate-limit banner.
func parseWait(text string) (time.Duration, bool) {
	m := waitClockPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, true
}

func (m Markers) validate() error {
	for name, re := range map[string]*regexp.Regexp{
		"rate limit":      m.RateLimit,
		"not found":       m.NotFound,
		"ambiguous":       m.Ambiguous,
		"update required": m.UpdateRequired,
		"quota exceeded":  m.QuotaExceeded,
		"stock exhausted": m.StockExhausted,
	} {
		if re == nil {
			return fmt.Errorf("%s marker is required", name)
		}
	}
	return nil
}
