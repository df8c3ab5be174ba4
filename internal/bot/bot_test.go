package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-amnesia/internal/config"
	"tg-amnesia/internal/models"
)

func TestWebhookSecret(t *testing.T) {
	assert.Equal(t, "secure_webhook_token_abcdef", webhookSecret("123456:xyzabcdef"))
	assert.Equal(t, "secure_webhook_token_abc", webhookSecret("abc"))
}

func TestWebhookPath(t *testing.T) {
	tests := map[string]string{
		"https://example.com/tg/hook": "/tg/hook",
		"https://example.com":         "/webhook",
		"https://example.com/":        "/webhook",
	}
	for endpoint, want := range tests {
		got, err := webhookPath(endpoint)
		require.NoError(t, err)
		assert.Equal(t, want, got, endpoint)
	}

	_, err := webhookPath("://bad")
	assert.Error(t, err)
}

func TestMenuCommandsAreTranslated(t *testing.T) {
	for lang := range commandLanguages {
		cmds := menuCommands(lang)
		require.Len(t, cmds, 1)
		assert.Equal(t, "clear", cmds[0].Command)
		assert.Equal(t, models.GetTranslation(lang, "cmd_desc_clear"), cmds[0].Description)
		assert.NotEqual(t, "cmd_desc_clear", cmds[0].Description)
	}
}

func TestInitializeRequiresToken(t *testing.T) {
	_, err := Initialize(context.Background(), &config.Config{}, nil)
	assert.ErrorContains(t, err, "bot token is required")
}

func TestSetupWebhookValidation(t *testing.T) {
	_, _, err := SetupWebhook(context.Background(), nil, WebhookOptions{})
	assert.ErrorContains(t, err, "endpoint is required")

	_, _, err = SetupWebhook(context.Background(), nil, WebhookOptions{Endpoint: "http://example.com/hook"})
	assert.ErrorContains(t, err, "HTTPS configuration required")
}
