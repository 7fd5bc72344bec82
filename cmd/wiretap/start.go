package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wiretap-proxy/wiretap/internal/admin"
	"github.com/wiretap-proxy/wiretap/internal/auth"
	"github.com/wiretap-proxy/wiretap/internal/cert"
	"github.com/wiretap-proxy/wiretap/internal/command"
	"github.com/wiretap-proxy/wiretap/internal/config"
	"github.com/wiretap-proxy/wiretap/internal/coremodule"
	"github.com/wiretap-proxy/wiretap/internal/cron"
	"github.com/wiretap-proxy/wiretap/internal/hook"
	"github.com/wiretap-proxy/wiretap/internal/module"
	"github.com/wiretap-proxy/wiretap/internal/process"
	"github.com/wiretap-proxy/wiretap/internal/proxy"
	"github.com/wiretap-proxy/wiretap/internal/reload"
	"github.com/wiretap-proxy/wiretap/internal/security"
	"github.com/wiretap-proxy/wiretap/internal/transport"
)

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy with the given configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := resolveConfigPath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			return startWithConfig(cfgPath, verbose)
		},
	}
	cmd.Flags().StringP("config", "c", "", "path to configuration file")
	cmd.Flags().Bool("verbose", false, "enable debug logging")
	return cmd
}

// startWithConfig loads and validates cfgPath, then runs the proxy. It is
// the shared entry point for both the interactive `start` command and the
// OS-service-managed `service run` command.
func startWithConfig(cfgPath string, verbose bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logLevel := parseLogLevel()
	if verbose {
		logLevel = slog.LevelDebug
	}
	return run(context.Background(), cfg, logLevel)
}

// run assembles every proxy component described by SPEC_FULL.md and blocks
// until an interrupt is received. It is the single place that wires
// config, security, the hook pipeline, the command graph, the module
// registry, the core module, the admin surface, and the cron scheduler
// together — the proxy-domain analogue of the teacher's pkg/app.Run.
func run(ctx context.Context, cfg *config.Config, logLevel slog.Level) error {
	credentials := security.NewCredentialStore()
	for name, v := range map[string]string{
		security.CredentialAccessToken: cfg.AccessToken,
		security.CredentialClientToken: cfg.ClientToken,
		security.CredentialSession:     cfg.Session,
		security.CredentialPassword:    cfg.Password,
	} {
		if v != "" {
			credentials.Set(name, v)
		}
	}
	redactor := security.NewRedactor()
	redactor.SyncCredentials(credentials)
	redactor.AddLiteral(cfg.Admin.BearerToken)
	redactor.AddLiteral(cfg.Admin.BasicPass)

	baseHandler := slog.NewTextHandler(os.Stderr, newLogHandlerOptions(logLevel, colorEnabled()))
	logger := slog.New(security.NewRedactingHandler(baseHandler, redactor))

	auditLogger := security.NewAuditLogger(security.AuditLoggerConfig{Writer: os.Stderr, Redactor: redactor})
	rateLimiter := security.NewRateLimiter(security.RateLimitConfig{})

	hooks := hook.NewPipeline(logger)
	conn := proxy.NewConnection(hooks, logger)
	conn.SetDebug(proxy.DebugConfigFromEnv())

	authProvider := auth.NewStubProvider()

	verifier, err := cert.NewVerifier(cert.VerifyConfig{})
	if err != nil {
		return fmt.Errorf("wiretap: building module verifier: %w", err)
	}

	commands := command.NewRegistry(cfg.CommandPrefix, &connReplier{conn: conn})
	registry := module.NewRegistry(hooks, commands, logger)
	importer := module.NewImporter(registry, verifier)

	module.Register(coremodule.FactoryKey, coremodule.NewFactory(coremodule.Dependencies{
		Commands: commands,
		Conn:     conn,
		Logger:   logger,
	}))
	if _, err := registry.Import(module.CoreModuleName, coremodule.FactoryKey, nil); err != nil {
		return fmt.Errorf("wiretap: importing core module: %w", err)
	}
	if err := registry.Load(ctx, module.CoreModuleName); err != nil {
		return fmt.Errorf("wiretap: loading core module: %w", err)
	}
	if coreHandle, err := registry.Get(module.CoreModuleName); err == nil {
		if coreMod, ok := coreHandle.Module().(*coremodule.Module); ok {
			coreMod.SetModuleRegistry(registry)
		}
	}

	for _, name := range cfg.Modules {
		if name == module.CoreModuleName {
			continue
		}
		raw, err := moduleRawConfig(cfg, name)
		if err != nil {
			logger.Warn("wiretap: failed to marshal module_config", "module", name, "error", err)
			continue
		}
		if _, err := registry.Import(name, name, raw); err != nil {
			logger.Warn("wiretap: failed to import configured module", "module", name, "error", err)
			continue
		}
		if err := registry.Load(ctx, name); err != nil {
			logger.Warn("wiretap: failed to load configured module", "module", name, "error", err)
		}
	}

	sup := process.New(logger, 30*time.Second)

	if cfg.ModulesDir != "" {
		if _, err := os.Stat(cfg.ModulesDir); err == nil {
			reloadHandler := reload.NewHandler(importer, registry, cfg.Modules, logger)
			if err := reloadHandler.Rescan(ctx, cfg.ModulesDir); err != nil {
				logger.Warn("wiretap: initial modules_dir scan reported errors", "error", err)
			}

			watcher, err := reload.NewWatcher(cfg.ModulesDir, logger)
			if err != nil {
				return fmt.Errorf("wiretap: creating modules_dir watcher: %w", err)
			}
			sup.Add("modules_watcher", &watcherComponent{watcher: watcher, handler: reloadHandler, dir: cfg.ModulesDir})

			scheduler := cron.NewScheduler(logger)
			if err := scheduler.RegisterJob(&cron.ModulesRescanJob{Handler: reloadHandler, Dir: cfg.ModulesDir, Logger: logger}); err != nil {
				return fmt.Errorf("wiretap: registering modules rescan job: %w", err)
			}
			if err := scheduler.RegisterJob(&cron.ModuleChainGCJob{Registry: registry, Logger: logger}); err != nil {
				return fmt.Errorf("wiretap: registering module chain GC job: %w", err)
			}
			sup.Add("cron", scheduler)
		} else {
			logger.Warn("wiretap: modules_dir does not exist, skipping auto-import", "dir", cfg.ModulesDir)
		}
	}

	var adminMetrics proxy.Metrics
	if cfg.Admin.Enabled {
		adminSrv := admin.New(adminConfig(cfg.Admin), registry, conn, auditLogger, rateLimiter, logger)
		adminMetrics = adminSrv.Metrics()
		sup.Add("admin", adminComponent{adminSrv})
	}
	conn.SetMetrics(adminMetrics)

	sup.Add("proxy_listener", &listener{
		addr:         net.JoinHostPort("", strconv.Itoa(cfg.ProxyPort)),
		upstreamURL:  fmt.Sprintf("ws://%s:%d/", cfg.ServerAddress, cfg.ServerPort),
		conn:         conn,
		logger:       logger,
		authProvider: authProvider,
		cfg:          cfg,
	})

	logger.Info("wiretap: starting", "proxy_port", cfg.ProxyPort, "upstream", fmt.Sprintf("%s:%d", cfg.ServerAddress, cfg.ServerPort))
	return sup.Run()
}

func moduleRawConfig(cfg *config.Config, name string) ([]byte, error) {
	node, ok := cfg.ModuleConfig[name]
	if !ok {
		return nil, nil
	}
	raw, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("marshal module_config[%s]: %w", name, err)
	}
	return raw, nil
}

// listener accepts client websocket connections and drives each through
// the connection state machine in its own goroutine (spec.md §4.E). Only
// one concurrent client is modeled per spec.md's single-Connection core —
// AcceptClient itself rejects a second concurrent client with
// ErrAlreadyConnected, so a production deployment would pool Connections
// behind this listener, but spec.md's scope is the single proxied session.
type listener struct {
	addr        string
	upstreamURL string
	conn        *proxy.Connection
	logger      *slog.Logger
	srv         *http.Server

	authProvider auth.Provider
	cfg          *config.Config
}

func (l *listener) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		t, err := transport.Accept(ctx, w, r, l.logger)
		if err != nil {
			l.logger.Error("wiretap: client accept failed", "error", err)
			return
		}
		if err := l.conn.AcceptClient(ctx, t); err != nil {
			l.logger.Warn("wiretap: client rejected", "error", err)
			_ = t.Close(err.Error())
			return
		}
		go l.serveClient(t)
	})
	l.srv = &http.Server{Addr: l.addr, Handler: mux}
	go func() {
		if err := l.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.logger.Error("wiretap: proxy listener stopped", "error", err)
		}
	}()
	return nil
}

// serveClient drives one accepted client transport through the remainder
// of the state machine: dial upstream, complete the handshake, and pump
// packets until either side closes (spec.md §4.E).
func (l *listener) serveClient(client *transport.WSTransport) {
	ctx, cancel := context.WithTimeout(context.Background(), transport.DialTimeout)
	defer cancel()

	if err := l.conn.BeginUpstreamConnect(ctx); err != nil {
		l.logger.Error("wiretap: beforeServerConnect hook failed", "error", err)
		_ = client.Close(err.Error())
		return
	}

	session, authErr := l.authProvider.Authenticate(ctx, l.cfg)
	if authErr != nil {
		l.logger.Error("wiretap: upstream authentication failed", "error", authErr)
		_ = client.Close(authErr.Error())
		if err := l.conn.CompleteUpstreamConnect(context.Background(), nil, authErr); err != nil {
			l.logger.Error("wiretap: upstream connect failed", "error", err)
		}
		return
	}

	server, dialErr := transport.Dial(ctx, l.upstreamURL, sessionHeaders(session), l.logger)
	if err := l.conn.CompleteUpstreamConnect(context.Background(), server, dialErr); err != nil {
		l.logger.Error("wiretap: upstream connect failed", "error", err)
		return
	}

	if err := waitForPlayState(ctx, server); err != nil {
		l.logger.Error("wiretap: upstream never reached play state", "error", err)
		l.conn.CloseServer()
		return
	}

	l.conn.EnterProxying()
	if err := l.conn.Run(context.Background()); err != nil {
		l.logger.Warn("wiretap: connection ended", "error", err)
	}
}

// sessionHeaders carries the authentication session's material on the
// upstream dial's HTTP handshake (spec.md §1, §6), since the websocket
// wire codec has no separate credential-exchange step of its own.
func sessionHeaders(session auth.Session) http.Header {
	headers := http.Header{}
	if session.AccessToken != "" {
		headers.Set("Authorization", "Bearer "+session.AccessToken)
	}
	if session.ClientToken != "" {
		headers.Set("X-Client-Token", session.ClientToken)
	}
	if session.Username != "" {
		headers.Set("X-Username", session.Username)
	}
	return headers
}

// waitForPlayState blocks until the upstream transport reports the "play"
// protocol state, matching EnterProxying's precondition (spec.md §4.E's
// state diagram: CONNECTED -> PROXYING only once the upstream handshake
// has completed). Returns an error if the transport closes or ctx expires
// first.
func waitForPlayState(ctx context.Context, server proxy.Transport) error {
	for {
		select {
		case state := <-server.States():
			if state == "play" {
				return nil
			}
		case err := <-server.Closed():
			if err == nil {
				err = fmt.Errorf("upstream closed before reaching play state")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *listener) Stop(ctx context.Context) error {
	if l.srv == nil {
		return nil
	}
	return l.srv.Shutdown(ctx)
}

type watcherComponent struct {
	watcher *reload.Watcher
	handler *reload.Handler
	dir     string
	cancel  context.CancelFunc
}

func (w *watcherComponent) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	if err := w.watcher.Start(ctx); err != nil {
		cancel()
		return err
	}
	go w.handler.Run(ctx, w.dir, w.watcher.Events())
	return nil
}

func (w *watcherComponent) Stop(context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Stop()
	return nil
}

type adminComponent struct{ srv *admin.Server }

func (a adminComponent) Start() error {
	a.srv.Start()
	return nil
}

func (a adminComponent) Stop(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}

func adminConfig(c config.AdminConfig) admin.Config {
	return admin.Config{
		ListenAddr:   c.ListenAddr,
		BearerToken:  c.BearerToken,
		BasicUser:    c.BasicUser,
		BasicPass:    c.BasicPass,
		RateLimitRPS: c.RateLimitRPS,
	}
}

func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "wiretap", "wiretap.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "wiretap", "wiretap.yaml"))
	}

	candidates = append(candidates, "wiretap.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
