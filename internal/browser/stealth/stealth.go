// Package stealth consolidates every anti-automation-detection measure the
// auditor applies to a session: user agent and platform overrides, realistic
// Accept-Language headers, device metrics, and a script that scrubs
// automation markers from the JS environment before any page script runs.
package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// ScreenProperties defines the spoofed display.
type ScreenProperties struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// Persona is the consistent identity a session presents to the target page.
// All evasion options live here rather than scattered through setup code.
type Persona struct {
	UserAgent           string           `json:"userAgent"`
	Platform            string           `json:"platform"`
	Languages           []string         `json:"languages"`
	HardwareConcurrency int              `json:"hardwareConcurrency,omitempty"`
	DeviceMemory        int              `json:"deviceMemory,omitempty"`
	Screen              ScreenProperties `json:"screen"`
}

// DefaultPersona returns the desktop Chrome profile the auditor ships with.
func DefaultPersona(userAgent string, width, height int) Persona {
	return Persona{
		UserAgent:           userAgent,
		Platform:            "Win32",
		Languages:           []string{"en-US", "en"},
		HardwareConcurrency: 8,
		DeviceMemory:        8,
		Screen: ScreenProperties{
			Width:  int64(width),
			Height: int64(height),
		},
	}
}

// Apply returns the task sequence that installs the persona on a fresh
// session. It must run before the first navigation so the evasion script is
// registered for every document the session ever loads.
func Apply(persona Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		setExtraHTTPHeaders(persona),
		setUserAgentOverride(persona),
		setDeviceMetrics(persona),
		injectEvasionScript(persona),
		page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("stealth profile applied", zap.String("user_agent", persona.UserAgent))
			return nil
		}),
	}
}

// AcceptLanguageHeader renders the persona's languages with descending
// q-values, matching what a real browser sends.
func AcceptLanguageHeader(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	header := languages[0]
	for i := 1; i < len(languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.7 {
			q = 0.7
		}
		header += fmt.Sprintf(",%s;q=%.1f", languages[i], q)
	}
	return header
}

func setExtraHTTPHeaders(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		header := AcceptLanguageHeader(persona.Languages)
		if header == "" {
			return nil
		}
		headers := map[string]interface{}{"Accept-Language": header}
		if err := network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx); err != nil {
			return fmt.Errorf("stealth: set extra http headers: %w", err)
		}
		return nil
	})
}

func setUserAgentOverride(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("stealth: set user agent override: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Screen.Width <= 0 || persona.Screen.Height <= 0 {
			return nil
		}
		err := emulation.SetDeviceMetricsOverride(persona.Screen.Width, persona.Screen.Height, 1.0, false).
			WithScreenOrientation(&emulation.ScreenOrientation{
				Type:  emulation.OrientationTypeLandscapePrimary,
				Angle: 0,
			}).Do(ctx)
		if err != nil {
			return fmt.Errorf("stealth: set device metrics: %w", err)
		}
		return nil
	})
}

func injectEvasionScript(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		personaJSON, err := json.Marshal(persona)
		if err != nil {
			return fmt.Errorf("stealth: marshal persona: %w", err)
		}
		script := fmt.Sprintf("const AUDITOR_PERSONA = %s;\n%s", personaJSON, evasionsScript)
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("stealth: add script on new document: %w", err)
		}
		return nil
	})
}
