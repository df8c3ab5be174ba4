package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-amnesia/internal/logger"
)

// WebhookServer represents a webhook HTTP server
type WebhookServer struct {
	server   *http.Server
	certFile string
	keyFile  string
}

// WebhookOptions configures SetupWebhook.
type WebhookOptions struct {
	Endpoint    string
	ListenPort  string
	DebugPath   string
	SecretToken string
	CertFile    string
	KeyFile     string
	// Status renders the processing counters on the debug page.
	Status func() string
}

// Start starts the webhook server
func (ws *WebhookServer) Start() error {
	logger.Infof("Starting HTTP server on %s", ws.server.Addr)

	// Determine if we should use TLS
	if ws.certFile != "" && ws.keyFile != "" {
		logger.Infof("Using TLS with cert: %s, key: %s", ws.certFile, ws.keyFile)
		return ws.server.ListenAndServeTLS(ws.certFile, ws.keyFile)
	}

	logger.Warningf("Running without TLS. Make sure you have a HTTPS proxy in front of this server")
	return ws.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ws *WebhookServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// webhookPath extracts the path updates are posted to.
func webhookPath(endpoint string) (string, error) {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "invalid webhook endpoint")
	}
	if parsedURL.Path == "" || parsedURL.Path == "/" {
		return "/webhook", nil
	}
	return parsedURL.Path, nil
}

// SetupWebhook registers the webhook with Telegram and builds the HTTP server
func SetupWebhook(ctx context.Context, bot *telego.Bot, opts WebhookOptions) (*th.BotHandler, *WebhookServer, error) {
	if opts.Endpoint == "" {
		return nil, nil, errors.New("webhook endpoint is required")
	}

	// Set default values
	if opts.ListenPort == "" {
		opts.ListenPort = "8443"
		logger.Infof("Using default listen port: %s", opts.ListenPort)
	}

	// Validate HTTPS setup
	if (opts.CertFile == "" || opts.KeyFile == "") && !strings.HasPrefix(opts.Endpoint, "https://") {
		return nil, nil, errors.New("HTTPS configuration required: set cert_file and key_file in config or use a HTTPS proxy")
	}

	path, err := webhookPath(opts.Endpoint)
	if err != nil {
		return nil, nil, err
	}

	logger.Infof("Setting webhook to: %s", opts.Endpoint)
	err = bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            opts.Endpoint,
		AllowedUpdates: []string{"message"},
		SecretToken:    opts.SecretToken,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to set webhook")
	}

	// Get and display webhook info for debugging
	if info, err := bot.GetWebhookInfo(ctx); err != nil {
		logger.Warningf("Failed to get webhook info: %v", err)
	} else {
		logger.Infof("Webhook info: URL=%s, HasCustomCert=%v, PendingUpdateCount=%d",
			info.URL, info.HasCustomCertificate, info.PendingUpdateCount)
		if info.LastErrorDate > 0 {
			logger.Warningf("Webhook last error: [%d] %s", info.LastErrorDate, info.LastErrorMessage)
		}
	}

	mux := http.NewServeMux()
	if opts.DebugPath != "" {
		mux.HandleFunc(opts.DebugPath, debugHandler(ctx, bot, opts))
	}

	server := &http.Server{
		Addr:              "0.0.0.0:" + opts.ListenPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set up updates handler via webhook
	updates, err := bot.UpdatesViaWebhook(ctx, telego.WebhookHTTPServeMux(mux, path, opts.SecretToken))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get updates channel")
	}

	bh, err := th.NewBotHandler(bot, updates)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create bot handler")
	}

	return bh, &WebhookServer{
		server:   server,
		certFile: opts.CertFile,
		keyFile:  opts.KeyFile,
	}, nil
}

func debugHandler(ctx context.Context, bot *telego.Bot, opts WebhookOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Infof("Debug endpoint accessed: %s %s", r.Method, r.URL.Path)

		var b strings.Builder
		b.WriteString("Bot webhook server is running\n\n")
		if botUser, err := bot.GetMe(ctx); err == nil {
			fmt.Fprintf(&b, "Bot username: %s\n", botUser.Username)
		}
		fmt.Fprintf(&b, "Webhook path: %s\n", opts.Endpoint)

		if info, err := bot.GetWebhookInfo(ctx); err == nil {
			b.WriteString("\nWebhook Info:\n")
			fmt.Fprintf(&b, "URL: %s\n", info.URL)
			fmt.Fprintf(&b, "Pending Updates: %d\n", info.PendingUpdateCount)
			if info.LastErrorDate > 0 {
				fmt.Fprintf(&b, "Last Error: [%s] %s\n",
					time.Unix(int64(info.LastErrorDate), 0).Format("2006-01-02 15:04:05"), info.LastErrorMessage)
			}
		} else {
			fmt.Fprintf(&b, "\nError getting webhook info: %v\n", err)
		}

		if opts.Status != nil {
			b.WriteString(opts.Status())
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(b.String()))
	}
}
