package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Sheiden1/hackathon/internal/blob"
	"github.com/Sheiden1/hackathon/internal/generation"
	"github.com/Sheiden1/hackathon/internal/grading"
	"github.com/Sheiden1/hackathon/internal/handler"
	appI18n "github.com/Sheiden1/hackathon/internal/i18n"
	"github.com/Sheiden1/hackathon/internal/llm"
	"github.com/Sheiden1/hackathon/internal/llm/prompts"
	"github.com/Sheiden1/hackathon/internal/metrics"
	"github.com/Sheiden1/hackathon/internal/model"
	"github.com/Sheiden1/hackathon/internal/quiz"
	"github.com/Sheiden1/hackathon/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "classroom",
		Short:        "Classroom multiple-choice activities with AI question generation",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("db", "classroom.db", "SQLite database path")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")
	pf.String("log-file", "", "Write logs to this file with rotation instead of stderr")

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), pendingCmd(), gradeCmd(), userAddCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `classroom --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM provider")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.String("prompt-lang", string(prompts.LangPortuguese), "Generation prompt language (pt, en)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("questions", "q", nil, "Question seed JSON files to import on start (repeatable)")
	f.StringP("lang", "l", "pt", "Default message language (pt, en)")
	f.Int("grade-scale", 100, "Grade scale teachers enter and see (10 or 100)")
	f.Duration("generate-interval", 10*time.Second, "Minimum average interval between generation requests")
	f.Int("generate-burst", 1, "Generation requests allowed back to back")
	f.Int64("max-upload-mb", 20, "Maximum upload size in megabytes")
	f.Duration("play-idle", 6*time.Hour, "Drop activity sessions idle for this long")
	f.Duration("token-ttl", store.DefaultTokenTTL, "How long login tokens stay valid")
	f.String("blob-backend", "local", "Material storage backend (local, minio)")
	f.String("uploads-dir", "uploads", "Directory for the local material backend")
	f.String("minio-endpoint", "localhost:9000", "MinIO endpoint")
	f.String("minio-access-key", "", "MinIO access key")
	f.String("minio-secret-key", "", "MinIO secret key")
	f.String("minio-bucket", "materials", "MinIO bucket")
	f.Bool("minio-secure", false, "Use TLS for MinIO")
	f.String("admin-password", "", "Initial admin password (or set CLASSROOM_ADMIN_PASSWORD)")
	addLLMFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate questions for a subject into the question bank",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.String("subject-id", "", "Subject id (required)")
	f.IntP("count", "n", generation.DefaultCount, "Number of questions to request")
	addLLMFlags(f)
	_ = cmd.MarkFlagRequired("subject-id")
	return cmd
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List submissions waiting for a grade as JSON",
		RunE:  runPending,
	}
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a submission",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.String("submission", "", "Submission id (required)")
	f.Float64("score", 0, "Score on the chosen scale")
	f.String("feedback", "", "Feedback for the student (required)")
	f.Int("grade-scale", 100, "Scale of --score (10 or 100)")
	f.String("as", "admin", "Username of the grading teacher")
	_ = cmd.MarkFlagRequired("submission")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}

func userAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user",
		RunE:  runUserAdd,
	}
	f := cmd.Flags()
	f.String("username", "", "Login name (required)")
	f.String("password", "", "Password (required)")
	f.String("display-name", "", "Name shown to teachers")
	f.String("role", string(model.UserRoleStudent), "Role (student, teacher, admin)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export submissions with their answers as JSON",
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
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

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CLASSROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("classroom")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/classroom")
	v.AddConfigPath("/etc/classroom")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(v.GetString("db"), store.WithTokenTTL(v.GetDuration("token-ttl")))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newLLM(v *viper.Viper) *llm.Client {
	lang := strings.ToLower(strings.TrimSpace(v.GetString("prompt-lang")))
	if !prompts.IsValidLang(lang) {
		slog.Warn("invalid prompt-lang, using pt", "lang", lang)
		lang = string(prompts.LangPortuguese)
	}
	return llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), prompts.Lang(lang))
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := loadQuestions(ctx, db, v.GetStringSlice("questions")); err != nil {
		return fmt.Errorf("load questions: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	scale, err := grading.ParseScale(v.GetInt("grade-scale"))
	if err != nil {
		return err
	}

	blobs, err := blob.Open(ctx, blob.Config{
		Backend:        v.GetString("blob-backend"),
		LocalDir:       v.GetString("uploads-dir"),
		MinioEndpoint:  v.GetString("minio-endpoint"),
		MinioAccessKey: v.GetString("minio-access-key"),
		MinioSecretKey: v.GetString("minio-secret-key"),
		MinioBucket:    v.GetString("minio-bucket"),
		MinioSecure:    v.GetBool("minio-secure"),
	})
	if err != nil {
		return fmt.Errorf("open material storage: %w", err)
	}

	if v.GetString("llm-key") == "" {
		slog.Warn("no LLM API key configured, generation requests will fail")
	}
	m := metrics.New()
	h := handler.New(db, newLLM(v), blobs, m, handler.Config{
		GradeScale:      scale,
		GenerateRate:    rate.Every(v.GetDuration("generate-interval")),
		GenerateBurst:   v.GetInt("generate-burst"),
		MaxUploadBytes:  v.GetInt64("max-upload-mb") << 20,
		PlayIdleTimeout: v.GetDuration("play-idle"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(appI18n.Middleware(lang))

	r.Handle("/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if v.GetString("blob-backend") == "local" {
		dir := v.GetString("uploads-dir")
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(dir))))
	}
	r.Route("/api", h.Routes)

	go h.SweepPlays(ctx, time.Minute)
	go purgeTokens(ctx, db, time.Hour)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"grade_scale", int(scale),
			"blob_backend", v.GetString("blob-backend"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func purgeTokens(ctx context.Context, db *store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpiredTokens(ctx)
			if err != nil {
				slog.Error("failed to purge expired tokens", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired tokens", "count", n)
			}
		}
	}
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := generation.New(newLLM(v), db, nil)
	rows, err := svc.Populate(cmd.Context(), generation.Request{
		SubjectID: v.GetString("subject-id"),
		Count:     v.GetInt("count"),
	})
	if err != nil {
		return fmt.Errorf("generate questions: %w", err)
	}
	return writeJSONTo(cmd.OutOrStdout(), rows)
}

func runPending(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	subs, err := db.ListPendingSubmissions(cmd.Context())
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	return writeJSONTo(cmd.OutOrStdout(), subs)
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	scale, err := grading.ParseScale(v.GetInt("grade-scale"))
	if err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	actor, err := db.GetUserByUsername(cmd.Context(), v.GetString("as"))
	if err != nil {
		return fmt.Errorf("load grader: %w", err)
	}
	if actor == nil {
		return fmt.Errorf("user %q not found", v.GetString("as"))
	}

	score, err := scale.Canonical(v.GetFloat64("score"))
	if err != nil {
		return err
	}
	g := grading.Grade{
		SubmissionID: v.GetString("submission"),
		Score:        score,
		Feedback:     v.GetString("feedback"),
	}
	if err := grading.New(db).Grade(cmd.Context(), actor, g); err != nil {
		return err
	}
	slog.Info("submission graded", "submission_id", g.SubmissionID, "score", g.Score, "grader", actor.Username)
	return nil
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	role := model.UserRole(v.GetString("role"))
	switch role {
	case model.UserRoleStudent, model.UserRoleTeacher, model.UserRoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(v.GetString("password")), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	id, err := db.CreateUser(cmd.Context(), model.User{
		Username:     v.GetString("username"),
		DisplayName:  v.GetString("display-name"),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := db.ExportSubmissions(cmd.Context())
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}
	export := model.ClassroomExport{
		ExportedAt:  time.Now().UTC(),
		Submissions: results,
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
	return writeJSONTo(w, export)
}

func writeJSONTo(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

// seedQuestion is one row of a question seed file. Subjects are named and
// created on first use.
type seedQuestion struct {
	Subject       string           `json:"subject"`
	QuestionText  string           `json:"question_text"`
	OptionA       string           `json:"option_a"`
	OptionB       string           `json:"option_b"`
	OptionC       string           `json:"option_c"`
	OptionD       string           `json:"option_d"`
	CorrectAnswer string           `json:"correct_answer"`
	Difficulty    model.Difficulty `json:"difficulty"`
}

func loadQuestions(ctx context.Context, db *store.Store, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	subjects, err := db.ListSubjects(ctx)
	if err != nil {
		return err
	}
	subjectIDs := make(map[string]string, len(subjects))
	for _, s := range subjects {
		subjectIDs[s.Name] = s.ID
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, importing again", "path", path)
		}

		var seeds []seedQuestion
		if err := json.Unmarshal(data, &seeds); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		rows := make([]model.StoredQuestion, 0, len(seeds))
		for i, sq := range seeds {
			name := strings.TrimSpace(sq.Subject)
			if name == "" {
				return fmt.Errorf("%s: question %d has no subject", path, i)
			}
			id, ok := subjectIDs[name]
			if !ok {
				id, err = db.CreateSubject(ctx, model.Subject{Name: name})
				if err != nil {
					return fmt.Errorf("create subject %q: %w", name, err)
				}
				subjectIDs[name] = id
			}
			row := model.StoredQuestion{
				SubjectID:     id,
				QuestionText:  sq.QuestionText,
				OptionA:       sq.OptionA,
				OptionB:       sq.OptionB,
				OptionC:       sq.OptionC,
				OptionD:       sq.OptionD,
				CorrectAnswer: strings.ToUpper(strings.TrimSpace(sq.CorrectAnswer)),
				Difficulty:    sq.Difficulty,
				Source:        "seed",
			}
			if row.Difficulty == "" {
				row.Difficulty = model.DifficultyMedium
			}
			if _, err := quiz.NormalizeStored(row, name); err != nil {
				return fmt.Errorf("%s: question %d: %w", path, i, err)
			}
			rows = append(rows, row)
		}

		if err := db.InsertQuestions(ctx, rows); err != nil {
			return fmt.Errorf("insert questions from %s: %w", path, err)
		}
		if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", len(rows))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or CLASSROOM_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
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
