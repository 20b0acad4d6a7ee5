package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/config"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/credentials"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/graph"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/prompt"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/service"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/specializer"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/templatesource"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/validator"
)

// scheduleFile is the document accepted by the schedule command.
type scheduleFile struct {
	Schedule schedule.Config    `yaml:"schedule"`
	Holidays []schedule.Holiday `yaml:"holidays"`
}

func newSpecializeCmd() *cobra.Command {
	var (
		requestPath  string
		templatePath string
		webhookBase  string
		outputPath   string
	)

	cmd := &cobra.Command{
		Use:   "specialize",
		Short: "Generate a workflow from a request file",
		Long: `Generate a workflow from a request file and print it as JSON.

Credential references and the webhook base URL are read from the same
environment variables the service uses (CREDENTIAL_*, PUBLIC_WEBHOOK_BASE_URL).`,
		Example: `  specializerctl specialize -f request.yaml
  specializerctl specialize -f request.json --template agent.json -o workflow.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req service.SpecializeRequest
			if err := readDocument(requestPath, &req); err != nil {
				return err
			}
			in, err := engineRequest(req)
			if err != nil {
				return err
			}

			tmpl, err := loadTemplate(cmd.Context(), templatePath)
			if err != nil {
				return err
			}

			cfg := config.Load()
			if webhookBase != "" {
				cfg.WebhookBaseURL = webhookBase
			}
			engine := specializer.New(specializer.Config{
				Credentials:    credentialSet(cfg),
				WebhookBaseURL: cfg.WebhookBaseURL,
				Logger:         slog.Default(),
			})

			res, err := engine.Specialize(tmpl, in)
			if err != nil {
				return err
			}
			if req.Name != "" {
				res.Workflow.Name = req.Name
			}
			for _, issue := range res.Validation.Issues() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", issue)
			}
			if res.WebhookURL != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "webhook: %s\n", res.WebhookURL)
			}

			data, err := json.MarshalIndent(res.Workflow, "", "  ")
			if err != nil {
				return fmt.Errorf("encode workflow: %w", err)
			}
			return writeOutput(cmd, outputPath, append(data, '\n'))
		},
	}

	cmd.Flags().StringVarP(&requestPath, "file", "f", "", "Request file (YAML or JSON, - for stdin)")
	cmd.Flags().StringVar(&templatePath, "template", "", "Template file (default: built-in template)")
	cmd.Flags().StringVar(&webhookBase, "webhook-base", "", "Public webhook base URL")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the workflow to a file instead of stdout")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newScheduleCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview the scheduling policy for an availability file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc scheduleFile
			if err := readDocument(path, &doc); err != nil {
				return err
			}
			text := schedule.Text(doc.Schedule, doc.Holidays)
			if text == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "scheduling is disabled")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "Schedule file (YAML or JSON, - for stdin)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [template]",
		Short: "Check a template against the import schema and the deployability rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src templatesource.Source = templatesource.EmbeddedSource{}
			if len(args) == 1 {
				src = templatesource.FileSource{Path: args[0]}
			}
			data, err := src.Load(cmd.Context())
			if err != nil {
				return err
			}

			v, err := validator.New()
			if err != nil {
				return err
			}
			report := service.TemplateReport{Schema: v.ValidateWorkflowJSON(data)}
			if report.Schema.Valid {
				if wf, err := graph.Decode(data); err == nil {
					structure := validator.Structure(wf)
					report.Structure = &structure
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Schema.Valid {
				return fmt.Errorf("%s: schema validation failed", src.Name())
			}
			if report.Structure == nil || !report.Structure.Deployable {
				return fmt.Errorf("%s: not deployable", src.Name())
			}
			return nil
		},
	}
	return cmd
}

func newStripCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "strip",
		Short: "Remove generated sections from agent instructions",
		Long: `Remove the scheduling policy and the other generated sections from
instructions that were read back from a deployed workflow, leaving the text
the tenant wrote.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.BaseInstructions(string(data)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "-", "Instructions file (- for stdin)")

	return cmd
}

func engineRequest(req service.SpecializeRequest) (specializer.Request, error) {
	p, err := credentials.ParseProvider(req.Provider)
	if err != nil {
		return specializer.Request{}, err
	}
	in := specializer.Request{
		Provider:      p,
		Holidays:      req.Holidays,
		RegenerateIDs: req.RegenerateIDs,
	}
	if req.Instructions != nil {
		in.Instructions = *req.Instructions
	}
	if req.Schedule != nil {
		in.Schedule = *req.Schedule
	}
	return in, nil
}

func credentialSet(cfg *config.Config) credentials.Set {
	return credentials.Set{
		Cache:           graph.CredentialRef{ID: cfg.CacheCredentialID, Name: cfg.CacheCredentialName},
		RelationalStore: graph.CredentialRef{ID: cfg.RelationalCredentialID, Name: cfg.RelationalCredentialName},
		OpenAI:          graph.CredentialRef{ID: cfg.OpenAICredentialID, Name: cfg.OpenAICredentialName},
		Gemini:          graph.CredentialRef{ID: cfg.GeminiCredentialID, Name: cfg.GeminiCredentialName},
	}
}

func loadTemplate(ctx context.Context, path string) (*templatesource.Template, error) {
	var src templatesource.Source = templatesource.EmbeddedSource{}
	if path != "" {
		src = templatesource.FileSource{Path: path}
	}
	data, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	v, err := validator.New()
	if err != nil {
		return nil, err
	}
	return templatesource.Parse(src.Name(), data, v)
}

// readDocument decodes a YAML or JSON file. JSON documents are valid YAML.
func readDocument(path string, v interface{}) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
	return nil
}
