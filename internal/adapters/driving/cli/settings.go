package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cosmikwolf/sazid/internal/core/domain"
)

// envOpenAIKey is where OpenAI credentials are read from.
const envOpenAIKey = "OPENAI_API_KEY"

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure AI providers, storage and chat behaviour.

Use subcommands to configure specific settings or run the interactive wizard.
API keys are never stored; set ` + envOpenAIKey + ` in the environment.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to configure all settings step by step.`,
	RunE:  runSettingsWizard,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding",
	Short: "Configure embedding provider",
	Long: `Configure the embedding provider used for ingestion and retrieval.

Changing the model or its dimensions requires a fresh store: the vector
index dimension is fixed when the store is created.`,
	RunE: runSettingsEmbedding,
}

var settingsLLMCmd = &cobra.Command{
	Use:   "llm",
	Short: "Configure LLM provider",
	Long:  `Configure the completion provider and its primary and fallback models.`,
	RunE:  runSettingsLLM,
}

var settingsStorageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Configure the vector and session store",
	RunE:  runSettingsStorage,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	settingsCmd.AddCommand(settingsEmbeddingCmd)
	settingsCmd.AddCommand(settingsLLMCmd)
	settingsCmd.AddCommand(settingsStorageCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	if settings.Embedding.Provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	printAPIKey(cmd, settings.Embedding.Provider, settings.Embedding.APIKey)
	printStatus(cmd, settings.Embedding.IsConfigured())
	cmd.Println()

	cmd.Println("[LLM]")
	cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.LLM.Model)
	if settings.LLM.FallbackModel != "" {
		cmd.Printf("  Fallback Model: %s\n", settings.LLM.FallbackModel)
	}
	if settings.LLM.Provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", settings.LLM.BaseURL)
	}
	printAPIKey(cmd, settings.LLM.Provider, settings.LLM.APIKey)
	printStatus(cmd, settings.LLM.IsConfigured())
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Backend: %s\n", settings.Storage.Backend.Description())
	cmd.Printf("  Metric: %s\n", settings.Storage.Metric.Description())
	if settings.Storage.Backend == domain.StoragePostgres {
		cmd.Printf("  DSN: %s\n", maskDSN(settings.Storage.PostgresDSN))
	} else if settings.Storage.DataDir != "" {
		cmd.Printf("  Data Dir: %s\n", settings.Storage.DataDir)
	}
	cmd.Println()

	cmd.Println("[Tools]")
	cmd.Printf("  Project Root: %s\n", settings.Tools.ProjectRoot)
	cmd.Printf("  Timeout: %s\n", settings.Tools.Timeout)
	if settings.Tools.ManifestPath != "" {
		cmd.Printf("  Manifest: %s\n", settings.Tools.ManifestPath)
	}
	cmd.Println()

	cmd.Println("[Chat]")
	cmd.Printf("  Chunk Tokens: %d\n", settings.Chat.ChunkTokens)
	cmd.Printf("  Retrieval K: %d\n", settings.Chat.RetrievalK)
	cmd.Printf("  Context Tokens: %d\n", settings.Chat.ContextTokens)
	cmd.Printf("  Max Tool Rounds: %d\n", settings.Chat.MaxToolRounds)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'sazid settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func printAPIKey(cmd *cobra.Command, provider domain.AIProvider, key string) {
	if !provider.RequiresAPIKey() {
		return
	}
	if key != "" {
		cmd.Printf("  API Key: %s\n", maskAPIKey(key))
	} else {
		cmd.Printf("  API Key: (not set, export %s)\n", envOpenAIKey)
	}
}

func printStatus(cmd *cobra.Command, configured bool) {
	status := "configured"
	if !configured {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}

	cmd.Println("Sazid Settings Wizard")
	cmd.Println("=====================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Step 1: Configure Embedding Provider")
	cmd.Println("------------------------------------")
	if err := configureEmbeddingProvider(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 2: Configure LLM Provider")
	cmd.Println("------------------------------")
	if err := configureLLMProvider(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Step 3: Configure Storage")
	cmd.Println("-------------------------")
	if err := configureStorage(cmd, reader); err != nil {
		return err
	}

	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}

	return nil
}

func runSettingsEmbedding(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}
	return configureEmbeddingProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsLLM(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}
	return configureLLMProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
}

func runSettingsStorage(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return notConfigured("settings")
	}
	return configureStorage(cmd, bufio.NewReader(cmd.InOrStdin()))
}

// selectProvider prompts for one of the AI providers.
func selectProvider(cmd *cobra.Command, reader *bufio.Reader, current domain.AIProvider) domain.AIProvider {
	providers := domain.AllAIProviders()
	defaultIdx := 1
	for i, p := range providers {
		if p == current {
			defaultIdx = i + 1
		}
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Printf("\nEnter choice [%d]: ", defaultIdx)
	idx := parseChoice(readLine(reader), len(providers), defaultIdx)
	return providers[idx-1]
}

func prompt(cmd *cobra.Command, reader *bufio.Reader, label, current string) string {
	cmd.Printf("%s [%s]: ", label, current)
	if v := readLine(reader); v != "" {
		return v
	}
	return current
}

//nolint:dupl // Similar to configureLLMProvider but for embeddings - intentional for CLI flow clarity
func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	e := &settings.Embedding

	cmd.Println("Select Embedding Provider")
	provider := selectProvider(cmd, reader, e.Provider)
	model := e.Model
	if provider != e.Provider {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	e.Provider = provider
	e.Model = prompt(cmd, reader, "Enter model name", model)
	if provider.IsLocal() {
		e.BaseURL = prompt(cmd, reader, "Enter base URL", e.BaseURL)
	}

	dims := e.Dimensions
	if known, ok := domain.EmbeddingDimensions()[e.Model]; ok {
		dims = known
	}
	if v, err := strconv.Atoi(prompt(cmd, reader, "Enter dimensions", strconv.Itoa(dims))); err == nil && v > 0 {
		dims = v
	}
	e.Dimensions = dims

	if provider.RequiresAPIKey() && os.Getenv(envOpenAIKey) == "" {
		cmd.Printf("Note: %s is not set. Export it before using this provider.\n", envOpenAIKey)
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s, %d dimensions)\n\n",
		provider.Description(), e.Model, e.Dimensions)
	return nil
}

//nolint:dupl // Similar to configureEmbeddingProvider but for LLM - intentional for CLI flow clarity
func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	l := &settings.LLM

	cmd.Println("Select LLM Provider")
	provider := selectProvider(cmd, reader, l.Provider)
	model := l.Model
	if provider != l.Provider {
		model = domain.DefaultLLMModels()[provider]
	}
	l.Provider = provider
	l.Model = prompt(cmd, reader, "Enter model name", model)
	l.FallbackModel = prompt(cmd, reader, "Enter fallback model (- for none)", l.FallbackModel)
	if l.FallbackModel == "-" {
		l.FallbackModel = ""
	}
	if provider.IsLocal() {
		l.BaseURL = prompt(cmd, reader, "Enter base URL", l.BaseURL)
	}

	if provider.RequiresAPIKey() && os.Getenv(envOpenAIKey) == "" {
		cmd.Printf("Note: %s is not set. Export it before using this provider.\n", envOpenAIKey)
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateLLMConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("LLM provider configured: %s (%s)\n\n", provider.Description(), l.Model)
	return nil
}

func configureStorage(cmd *cobra.Command, reader *bufio.Reader) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	st := &settings.Storage

	cmd.Println("Select Storage Backend")
	backends := domain.AllStorageBackends()
	defaultIdx := 1
	for i, b := range backends {
		if b == st.Backend {
			defaultIdx = i + 1
		}
		cmd.Printf("  %d. %s\n", i+1, b.Description())
	}
	cmd.Printf("\nEnter choice [%d]: ", defaultIdx)
	st.Backend = backends[parseChoice(readLine(reader), len(backends), defaultIdx)-1]

	if st.Backend == domain.StoragePostgres {
		st.PostgresDSN = prompt(cmd, reader, "Enter connection string", st.PostgresDSN)
	}

	cmd.Println("Select Distance Metric")
	metrics := domain.AllDistanceMetrics()
	defaultIdx = 1
	for i, m := range metrics {
		if m == st.Metric {
			defaultIdx = i + 1
		}
		cmd.Printf("  %d. %s\n", i+1, m.Description())
	}
	cmd.Printf("\nEnter choice [%d]: ", defaultIdx)
	st.Metric = metrics[parseChoice(readLine(reader), len(metrics), defaultIdx)-1]

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to configure storage: %w", err)
	}
	cmd.Printf("Storage configured: %s, %s\n\n", st.Backend.Description(), st.Metric.Description())
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a postgres URL.
func maskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "(set)"
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}
