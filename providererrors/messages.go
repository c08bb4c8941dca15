package providererrors

import (
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

// SettingsAPIKeys is the settings action that opens the API key screen.
const SettingsAPIKeys = "open_api_keys"

// PricingURL is where upgrade calls to action point.
const PricingURL = "/pricing"

// Context describes who hit an error and how.
type Context struct {
	Provider   provider.Provider
	Model      string
	UserID     string
	HasAPIKey  bool
	Privileged bool
}

// ErrorMessage is end-user guidance for an error. Action may span several
// numbered lines.
type ErrorMessage struct {
	Title          string `json:"title"`
	Message        string `json:"message"`
	Action         string `json:"action,omitempty"`
	HelpURL        string `json:"helpUrl,omitempty"`
	UpgradeURL     string `json:"upgradeUrl,omitempty"`
	SettingsAction string `json:"settingsAction,omitempty"`
}

// GenerateErrorMessage picks the guidance category for err by keyword and
// renders it for c.
func GenerateErrorMessage(err error, c Context) ErrorMessage {
	text := ""
	if err != nil {
		text = describe(err)
	}
	lower := strings.ToLower(text)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("api key required", "missing api key", "no api key"):
		return missingAPIKey(c)
	case has("invalid api key", "unauthorized", "forbidden", "401", "403"):
		return invalidAPIKey(c, lower)
	case has("rate limit", "too many requests", "429"):
		return rateLimited(c)
	case has("quota exceeded", "usage limit", "billing"):
		return quotaExceeded(c)
	case has("network", "connection", "econnrefused", "econnreset", "etimedout", "timeout", "could not be reached"):
		return networkFailure(c, lower)
	case has("service unavailable", "model not found", "502", "503", "504"):
		return serviceUnavailable(c, lower)
	}
	return ErrorMessage{
		Title:          "AI Service Error",
		Message:        "An unexpected error occurred while processing your request. Please try again or contact support if the issue persists.",
		Action:         "Try again with a different model or check your settings",
		SettingsAction: SettingsAPIKeys,
	}
}

func displayName(p provider.Provider) string {
	if !p.Valid() {
		return "AI service"
	}
	return p.DisplayName()
}

func missingAPIKey(c Context) ErrorMessage {
	if !c.Provider.Valid() {
		return ErrorMessage{
			Title:          "API Key Required",
			Message:        "An API key is required to use this AI model. Please configure your API keys in Settings.",
			Action:         "Add API key in Settings → API Keys",
			SettingsAction: SettingsAPIKeys,
		}
	}

	name := c.Provider.DisplayName()
	msg := fmt.Sprintf("To use %s models, you need to provide your own API key. This is free to obtain and gives you direct access to %s's latest models.", name, name)
	if c.Privileged {
		msg = fmt.Sprintf("Your plan includes server-funded usage, but you can add your own %s API key for unlimited access and faster responses.", name)
	}
	return ErrorMessage{
		Title:          name + " API Key Required",
		Message:        msg,
		Action:         fmt.Sprintf("1. Visit %s's website to get your free API key\n2. Copy the API key\n3. Add it in Settings → API Keys → %s\n4. Start chatting with %s models", name, name, name),
		HelpURL:        c.Provider.SetupURL(),
		SettingsAction: SettingsAPIKeys,
	}
}

func invalidAPIKey(c Context, lower string) ErrorMessage {
	if !c.Provider.Valid() {
		return ErrorMessage{
			Title:          "Invalid API Key",
			Message:        "The provided API key appears to be invalid. Please check your API key format and try again.",
			Action:         "Verify your API key in Settings → API Keys",
			SettingsAction: SettingsAPIKeys,
		}
	}

	name := c.Provider.DisplayName()
	setup := c.Provider.SetupURL()
	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "401"):
		return ErrorMessage{
			Title:          name + " Authentication Failed",
			Message:        fmt.Sprintf("Your %s API key is invalid, expired, or doesn't have the required permissions.", name),
			Action:         fmt.Sprintf("1. Check your %s account is active and has billing set up\n2. Verify your API key hasn't expired\n3. Generate a new API key if needed\n4. Update it in Settings → API Keys → %s", name, name),
			HelpURL:        setup,
			SettingsAction: SettingsAPIKeys,
		}
	case strings.Contains(lower, "forbidden") || strings.Contains(lower, "403"):
		return ErrorMessage{
			Title:          name + " Access Denied",
			Message:        fmt.Sprintf("Your %s API key doesn't have permission to access this model or your account has billing issues.", name),
			Action:         fmt.Sprintf("1. Check your %s account billing status\n2. Verify your API key has the required permissions\n3. Try a different model that's available in your plan\n4. Contact %s support if the issue persists", name, name),
			HelpURL:        setup,
			SettingsAction: SettingsAPIKeys,
		}
	}

	guidance := c.Provider.Info().FormatGuidance
	if guidance == "" {
		guidance = "Please check the API key format requirements"
	}
	return ErrorMessage{
		Title:          name + " API Key Invalid",
		Message:        fmt.Sprintf("The %s API key format is incorrect. %s.", name, guidance),
		Action:         fmt.Sprintf("1. Double-check you copied the complete API key\n2. Make sure there are no extra spaces or characters\n3. Generate a new API key if needed\n4. Update it in Settings → API Keys → %s", name),
		HelpURL:        setup,
		SettingsAction: SettingsAPIKeys,
	}
}

func rateLimited(c Context) ErrorMessage {
	if !c.Provider.Valid() {
		return ErrorMessage{
			Title:   "Rate Limit Exceeded",
			Message: "You've exceeded the rate limit for this service. Please wait a moment before trying again.",
			Action:  "Wait a few minutes and try again",
		}
	}

	if c.Provider == provider.Google && !c.HasAPIKey {
		if c.Privileged {
			return ErrorMessage{
				Title:          "Plan Rate Limit Reached",
				Message:        "You've reached your plan's usage limit for Gemini models. Add your own API key for unlimited usage.",
				Action:         "Add your own Gemini API key in Settings → API Keys → Google Gemini",
				HelpURL:        c.Provider.SetupURL(),
				SettingsAction: SettingsAPIKeys,
			}
		}
		return ErrorMessage{
			Title:          "Free Usage Limit Reached",
			Message:        "You've reached the daily limit for free Gemini usage. Add your own API key or upgrade your plan for higher limits.",
			Action:         "Add your own Gemini API key for unlimited usage",
			HelpURL:        c.Provider.SetupURL(),
			UpgradeURL:     PricingURL,
			SettingsAction: SettingsAPIKeys,
		}
	}

	name := c.Provider.DisplayName()
	return ErrorMessage{
		Title:   name + " Rate Limit",
		Message: fmt.Sprintf("You've exceeded the rate limit for %s. This is typically temporary and will reset shortly.", name),
		Action:  "Wait a few minutes and try again, or try a different model",
	}
}

func quotaExceeded(c Context) ErrorMessage {
	if c.Provider == provider.Google && !c.HasAPIKey {
		if c.Privileged {
			return ErrorMessage{
				Title:          "Monthly Plan Quota Exceeded",
				Message:        "You've used all of your plan's quota for this month. Add your own API key for unlimited usage.",
				Action:         "Add your own Gemini API key in Settings → API Keys → Google Gemini",
				HelpURL:        c.Provider.SetupURL(),
				SettingsAction: SettingsAPIKeys,
			}
		}
		return ErrorMessage{
			Title:          "Free Quota Exceeded",
			Message:        "You've reached your free usage limit. Upgrade your plan or add your own API key for continued access.",
			Action:         "Upgrade your plan or add your own API key",
			HelpURL:        c.Provider.SetupURL(),
			UpgradeURL:     PricingURL,
			SettingsAction: SettingsAPIKeys,
		}
	}

	return ErrorMessage{
		Title:      "Usage Quota Exceeded",
		Message:    fmt.Sprintf("You've exceeded your usage quota for %s. This may reset daily or monthly depending on your plan.", displayName(c.Provider)),
		Action:     "Wait for quota reset or upgrade your plan",
		UpgradeURL: PricingURL,
	}
}

func networkFailure(c Context, lower string) ErrorMessage {
	name := displayName(c.Provider)
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "etimedout") {
		return ErrorMessage{
			Title:   "Request Timeout",
			Message: fmt.Sprintf("The request to %s timed out. This might be due to network issues or high server load.", name),
			Action:  "Check your internet connection and try again",
		}
	}
	return ErrorMessage{
		Title:   "Network Connection Error",
		Message: fmt.Sprintf("Unable to connect to %s. Please check your internet connection.", name),
		Action:  "Check your internet connection and try again",
	}
}

func serviceUnavailable(c Context, lower string) ErrorMessage {
	name := displayName(c.Provider)
	switch {
	case strings.Contains(lower, "model not found"):
		msg := ErrorMessage{
			Title:   "Model Not Available",
			Message: fmt.Sprintf("The requested model is not available on %s. It may have been deprecated or renamed.", name),
			Action:  "Try a different model or check the provider's documentation",
		}
		if c.Provider.Valid() {
			msg.HelpURL = c.Provider.SetupURL()
		}
		return msg
	case strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "504"):
		return ErrorMessage{
			Title:   name + " Temporarily Unavailable",
			Message: fmt.Sprintf("%s is experiencing technical difficulties. This is usually temporary.", name),
			Action:  "Try again in a few minutes or use a different model",
		}
	}
	return ErrorMessage{
		Title:   "Service Unavailable",
		Message: fmt.Sprintf("%s is currently unavailable. This might be due to maintenance or high demand.", name),
		Action:  "Try again later or use a different AI provider",
	}
}
