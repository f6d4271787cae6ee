package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examforge/internal/correction"
	"github.com/pavelanni/examforge/internal/handler"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/mdmap"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/output"
	"github.com/pavelanni/examforge/internal/store"
	"github.com/pavelanni/examforge/internal/structure"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examforge",
		Short: "Turn annotated exam transcripts into structured exam documents",
	}

	serve := serveCmd()
	root.AddCommand(serve, importCmd(), filesCmd(), reconstructCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examforge --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addOutputFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("format", "f", "json", "Output format (json, yaml, table)")
	f.String("query", "", "jq expression applied to the output")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP correction API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examforge.db", "SQLite database path")
	f.String("llm-url", "", "OpenAI-compatible API base URL (empty disables suggestions)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptFull), "Suggestion prompt variant (full, outline)")
	f.StringP("lang", "l", "en", "Default language for messages and section names (en, zh)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /zh)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.StringSlice("cors-origins", nil, "Browser origins allowed to call the API (repeatable)")
	f.String("admin-password", "", "Initial admin password (or set EXAMFORGE_ADMIN_PASSWORD)")
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a transcript (and optional annotation map) as a correction file",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "examforge.db", "SQLite database path")
	f.String("text", "", "Markdown transcript path (required)")
	f.String("map", "", "Annotation map JSON path")
	f.String("name", "", "File name (defaults to the transcript base name)")
	f.String("category", "", "Exam category")
	f.String("source", "", "Exam source")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func filesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List stored correction files",
		RunE:  runFiles,
	}
	cmd.Flags().String("db", "examforge.db", "SQLite database path")
	addOutputFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func reconstructCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Print the exam tree rebuilt from a transcript and annotation map",
		RunE:  runReconstruct,
	}
	f := cmd.Flags()
	f.String("text", "", "Markdown transcript path (required)")
	f.String("map", "", "Annotation map JSON path (required)")
	f.StringP("lang", "l", "en", "Language for section names (en, zh)")
	f.Bool("strict", false, "Fail when annotations have no enclosing section or question")
	addOutputFlags(cmd)
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("text")
	_ = cmd.MarkFlagRequired("map")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submitted exam documents",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examforge.db", "SQLite database path")
	f.String("uuid", "", "Export a single exam by UUID")
	addOutputFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examforge")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examforge")
	v.AddConfigPath("/etc/examforge")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create LLM client when an endpoint is configured.
	var suggester correction.Suggester
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		if err := prompts.Load(prompts.Templates); err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
		promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
		if !prompts.IsValidVariant(promptVariant) {
			slog.Warn("invalid prompt-variant, using full", "variant", promptVariant)
			promptVariant = string(prompts.PromptFull)
		}
		suggester = llm.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"), prompts.PromptVariant(promptVariant))
		slog.Info("annotation suggestions enabled", "url", llmURL, "model", v.GetString("llm-model"), "variant", promptVariant)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		Lang:          lang,
		CORSOrigins:   v.GetStringSlice("cors-origins"),
	}

	h := handler.New(db, correction.NewService(db, suggester), cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"base_path", basePath,
		"cors_origins", cfg.CORSOrigins,
		"suggestions", suggester != nil,
	)
	return http.ListenAndServe(addr, r)
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	textPath := v.GetString("text")
	text, err := os.ReadFile(textPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", textPath, err)
	}
	var mapData []byte
	if mapPath := v.GetString("map"); mapPath != "" {
		if mapData, err = os.ReadFile(mapPath); err != nil {
			return fmt.Errorf("read %s: %w", mapPath, err)
		}
	}

	hash := sha256sum(append(append([]byte{}, text...), mapData...))
	storedHash, err := db.GetImportedFileHash(textPath)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", textPath, err)
	}
	if storedHash == hash {
		slog.Info("transcript unchanged, skipping", "path", textPath)
		return nil
	}
	if storedHash != "" {
		slog.Warn("transcript changed since last import, storing it as a new file", "path", textPath)
	}

	name := v.GetString("name")
	if name == "" {
		name = filepath.Base(textPath)
	}
	f, err := correction.NewFile(name, string(text), mapData, v.GetString("category"), v.GetString("source"))
	if err != nil {
		return err
	}
	id, err := db.CreateFile(f)
	if err != nil {
		return fmt.Errorf("store %s: %w", textPath, err)
	}
	if err := db.SetImportedFileHash(textPath, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", textPath, err)
	}
	slog.Info("imported transcript", "path", textPath, "id", id, "lines", mdmap.NewDocument(f.Content).Len())
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runFiles(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	files, err := db.ListFiles()
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	table := output.Table{Headers: []string{"ID", "NAME", "CATEGORY", "SOURCE", "UPDATED"}}
	for _, f := range files {
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(f.ID, 10), f.Name, f.Category, f.Source, f.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	return printResult(cmd, v, table)
}

func runReconstruct(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	text, err := os.ReadFile(v.GetString("text"))
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	mapData, err := os.ReadFile(v.GetString("map"))
	if err != nil {
		return fmt.Errorf("read annotation map: %w", err)
	}

	doc := mdmap.NewDocument(string(text))
	m, err := mdmap.FromJSON(mapData, doc.Len())
	if err != nil {
		return err
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang))

	res, err := structure.Build(m, doc, appI18n.SectionNamer(ctx))
	if err != nil {
		return err
	}
	for _, o := range res.Orphans {
		slog.Warn("annotation has no container", "uuid", o.UUID, "type", o.Type, "line", o.Line)
	}
	if v.GetBool("strict") {
		if err := res.Validate(); err != nil {
			return err
		}
	}
	return printResult(cmd, v, res)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var exams []model.StoredExam
	if id := v.GetString("uuid"); id != "" {
		exam, err := db.GetExam(id)
		if err != nil {
			return fmt.Errorf("get exam %s: %w", id, err)
		}
		if exam == nil {
			return fmt.Errorf("exam %s not found", id)
		}
		exams = append(exams, *exam)
	} else if exams, err = db.ListExams(); err != nil {
		return fmt.Errorf("list exams: %w", err)
	}

	format, err := output.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		table := output.Table{Headers: []string{"UUID", "NAME", "FILE", "SECTIONS", "QUESTIONS", "SUBMITTED"}}
		for _, e := range exams {
			questions := 0
			for _, s := range e.Document.Sections {
				questions += len(s.Questions)
			}
			table.Rows = append(table.Rows, []string{
				e.Document.UUID, e.Document.Name, strconv.FormatInt(e.FileID, 10),
				strconv.Itoa(len(e.Document.Sections)), strconv.Itoa(questions),
				e.CreatedAt.Format("2006-01-02 15:04"),
			})
		}
		return printResult(cmd, v, table)
	}

	docs := make([]model.ExamDocument, 0, len(exams))
	for _, e := range exams {
		docs = append(docs, e.Document)
	}
	slog.Info("exporting exams", "count", len(docs))
	if v.GetString("uuid") != "" {
		return printResult(cmd, v, docs[0])
	}
	return printResult(cmd, v, docs)
}

// printResult writes data to the --output destination in --format, filtered
// by --query.
func printResult(cmd *cobra.Command, v *viper.Viper, data any) error {
	format, err := output.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := output.NewPrinter(w, format, v.GetString("query")).Print(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or EXAMFORGE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
