// Command autopatch processes one natural-language change request against a
// GitHub repository: it plans the file edits, synthesizes contents, commits
// them to a working branch, opens a PR, and repairs the changes while CI
// stays red.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"autopatch/pkg/config"
	"autopatch/pkg/events"
	"autopatch/pkg/github"
	"autopatch/pkg/logx"
	"autopatch/pkg/metrics"
	"autopatch/pkg/orch"
	"autopatch/pkg/persistence"
	"autopatch/pkg/synth"
	"autopatch/pkg/synth/llm"
	"autopatch/pkg/ticket"
	"autopatch/pkg/utils"
)

// Version information - set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		projectDir  = flag.String("projectdir", ".", "Local checkout of the target repository")
		repoArg     = flag.String("repo", "", "Target repository (owner/name or GitHub URL; default: origin of the checkout)")
		ticketNum   = flag.Int("ticket", 0, "Issue number being processed")
		prNum       = flag.Int("pr", 0, "Open PR to revise from a reviewer comment (instead of -ticket)")
		title       = flag.String("title", "", "Ticket title")
		bodyFile    = flag.String("body-file", "", "File containing the ticket body or the reviewer comment")
		actor       = flag.String("actor", "", "Login of the user who filed the ticket or comment")
		history     = flag.Bool("history", false, "Print the run history for the repository and exit")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("autopatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if *debug {
		logx.SetDebug(true, nil)
	}

	if *history {
		os.Exit(runHistory(*projectDir, *repoArg))
	}
	os.Exit(run(*projectDir, *repoArg, *ticketNum, *prNum, *title, *bodyFile, *actor))
}

// run contains the main application logic and returns an exit code, so
// defers execute before os.Exit.
func run(projectDir, repoArg string, ticketNum, prNum int, title, bodyFile, actor string) int {
	commentMode := prNum != 0
	if commentMode {
		if ticketNum != 0 {
			fmt.Fprintln(os.Stderr, "-ticket and -pr are mutually exclusive")
			return 2
		}
		if bodyFile == "" {
			fmt.Fprintln(os.Stderr, "-pr requires the reviewer comment via -body-file")
			return 2
		}
	} else if title == "" || ticketNum == 0 {
		fmt.Fprintln(os.Stderr, "both -ticket and -title are required")
		return 2
	}

	if err := config.LoadConfig(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := handleSecretsDecryption(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to handle secrets: %v\n", err)
		return 1
	}
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	owner, repo, err := resolveRepo(repoArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve repository: %v\n", err)
		return 1
	}

	creds := github.NewSecretsProvider()
	client := github.NewClient(owner, repo, creds)
	if err := github.CheckAuth(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "GitHub authentication failed: %v\n", err)
		return 1
	}

	body, err := readBody(bodyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read ticket body: %v\n", err)
		return 1
	}

	handler, rt, err := buildHandler(ctx, cfg, projectDir, client, creds, owner+"/"+repo, actor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}
	defer rt.cleanup()

	reader := synth.NewDirReader(projectDir)
	var result *ticket.Result
	if commentMode {
		result, err = handler.HandleComment(ctx, ticket.Comment{
			PRNumber: prNum,
			Body:     body,
			Actor:    actor,
		}, reader)
	} else {
		result, err = handler.Handle(ctx, ticket.Ticket{
			Number: ticketNum,
			Title:  title,
			Body:   body,
			Actor:  actor,
		}, reader)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}

	fmt.Printf("Outcome: %s (branch %s", result.Outcome, result.Branch)
	if result.PRNumber > 0 {
		fmt.Printf(", PR #%d", result.PRNumber)
	}
	fmt.Println(")")
	reportUsage(ctx, cfg, rt.runID)

	if !result.Success {
		return 1
	}
	return 0
}

// historyRunLimit caps the per-run lines -history prints.
const historyRunLimit = 20

// runHistory prints the stored run history for the repository.
func runHistory(projectDir, repoArg string) int {
	if err := config.LoadConfig(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get config: %v\n", err)
		return 1
	}
	owner, repo, err := resolveRepo(repoArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve repository: %v\n", err)
		return 1
	}
	repoName := owner + "/" + repo

	db, err := persistence.InitializeDatabase(filepath.Join(projectDir, cfg.DatabasePath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open run database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	store := persistence.NewDatabaseOperations(db)

	summary, err := store.GetRepoSummary(repoName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to summarize runs: %v\n", err)
		return 1
	}

	fmt.Printf("%s: %d runs, %d succeeded, %d tokens ($%.4f)\n",
		repoName, summary.TotalRuns, summary.SucceededRuns, summary.TotalTokens, summary.TotalCost)
	if summary.LastCompleted != nil {
		fmt.Printf("Last completed: %s\n", summary.LastCompleted.Format("2006-01-02 15:04:05 MST"))
	}

	runs, err := store.QueryRuns(&persistence.RunFilter{Repo: &repoName, Limit: historyRunLimit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}
	for _, r := range runs {
		line := fmt.Sprintf("  %s  %-12s %s", r.CreatedAt.Format("2006-01-02 15:04"), r.Status, r.TicketTitle)
		if r.PRNumber > 0 {
			line += fmt.Sprintf(" (PR #%d)", r.PRNumber)
		}
		fmt.Println(line)
	}
	return 0
}

// runtime holds the per-run pieces main needs after the handler finishes.
type runtime struct {
	cleanup func()
	runID   string
}

// buildHandler wires the full component stack for one run.
func buildHandler(ctx context.Context, cfg config.Config, projectDir string, client *github.Client, creds github.CredentialProvider, repoName, actor string) (*ticket.Handler, *runtime, error) {
	rawClient, err := llm.NewClient(cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model client: %w", err)
	}
	counter, err := utils.NewTokenCounter(cfg.Model.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	runID := events.NewRunID()
	modelClient := metrics.NewRecordingClient(rawClient, counter, cfg.Model, metrics.NewUsageRecorder(), runID)

	policy := loadRepoPolicy(ctx, client)

	writer, err := events.NewWriter(filepath.Join(projectDir, config.ConfigDirName, cfg.Telemetry.EventLogDir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event log: %w", err)
	}

	db, err := persistence.InitializeDatabase(filepath.Join(projectDir, cfg.DatabasePath))
	if err != nil {
		_ = writer.Close()
		return nil, nil, fmt.Errorf("failed to open run database: %w", err)
	}
	store := persistence.NewDatabaseOperations(db)

	sink := events.MultiSink{
		writer,
		events.NewPrometheusRecorder(),
		persistence.NewSink(store),
	}

	orchestrator := orch.NewOrchestrator(
		synth.NewEditor(modelClient, counter, cfg.Model),
		github.NewCommitter(client),
		&policy,
		sink,
		runID, repoName, actor,
	)

	deps := ticket.Deps{
		Planner:      synth.NewPlanner(modelClient, counter, cfg.Model),
		Host:         client,
		Orchestrator: orchestrator,
		Loop:         orch.NewVerifyLoop(orchestrator, client, creds, cfg.Verify),
		Creds:        creds,
		Policy:       &policy,
		Git:          cfg.Git,
		Sink:         sink,
		Store:        store,
		RunID:        runID,
		Repo:         repoName,
	}

	rt := &runtime{
		runID: runID,
		cleanup: func() {
			_ = writer.Close()
			_ = db.Close()
		},
	}
	return ticket.NewHandler(deps), rt, nil
}

// reportUsage prints the run's token/cost rollup when a Prometheus backend
// is configured.
func reportUsage(ctx context.Context, cfg config.Config, runID string) {
	if cfg.Telemetry.PrometheusURL == "" {
		return
	}
	qs, err := metrics.NewQueryService(cfg.Telemetry.PrometheusURL)
	if err != nil {
		config.LogInfo("usage rollup unavailable: %v", err)
		return
	}
	usage, err := qs.GetRunMetrics(ctx, runID)
	if err != nil {
		config.LogInfo("usage rollup unavailable: %v", err)
		return
	}
	fmt.Printf("LLM usage: %d tokens ($%.4f)\n", usage.TotalTokens, usage.TotalCost)
}

// loadRepoPolicy fetches autopatch.yaml from the target repo's default
// branch, falling back to the default policy when the file is absent.
func loadRepoPolicy(ctx context.Context, client *github.Client) config.RepoPolicy {
	contents, err := client.GetFileContents(ctx, config.PolicyFileName, "")
	if err != nil {
		config.LogInfo("no %s in target repo, using default policy", config.PolicyFileName)
		return config.DefaultRepoPolicy()
	}
	policy, err := config.ParseRepoPolicy(contents)
	if err != nil {
		config.LogInfo("ignoring invalid %s: %v", config.PolicyFileName, err)
		return config.DefaultRepoPolicy()
	}
	return policy
}

// handleSecretsDecryption loads credentials into memory when an encrypted
// secrets file is present, prompting the operator for the password.
func handleSecretsDecryption(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	fmt.Print("Enter secrets password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	secrets, err := config.DecryptSecretsFile(projectDir, string(password))
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// readBody loads the ticket body from a file; empty path means no body.
func readBody(bodyFile string) (string, error) {
	if bodyFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(bodyFile)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// resolveRepo turns -repo into owner and name. Accepts owner/name shorthand
// or any GitHub remote URL.
func resolveRepo(repoArg string) (string, string, error) {
	if repoArg == "" {
		return "", "", fmt.Errorf("-repo is required (owner/name or GitHub URL)")
	}
	if !strings.Contains(repoArg, ":") && strings.Count(repoArg, "/") == 1 {
		parts := strings.SplitN(repoArg, "/", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", "", fmt.Errorf("invalid repository %q", repoArg)
		}
		return parts[0], parts[1], nil
	}
	return github.ParseGitHubURL(repoArg)
}
