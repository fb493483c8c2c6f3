package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/config"
	"github.com/kailas-cloud/aegis/internal/domain"
	domdlp "github.com/kailas-cloud/aegis/internal/domain/dlp"
	"github.com/kailas-cloud/aegis/internal/domain/document"
)

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the sovereignty boundary of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			warnings, err := config.ValidateSovereignty(&a.cfg)
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}

			var cfgErr *domain.ConfigurationError
			if errors.As(err, &cfgErr) {
				for _, v := range cfgErr.Violations {
					fmt.Fprintf(out, "violation: %s\n", v)
				}
			}
			if err != nil {
				return fmt.Errorf("sovereignty check failed: %w", err)
			}

			mode := "air-gapped"
			if a.cfg.Sovereignty.HybridMode {
				mode = "hybrid"
			}
			fmt.Fprintf(out, "sovereignty check passed (%s mode)\n", mode)
			return nil
		},
	}
}

// scanOutput is what `aegis scan` prints. Matched text is never included.
type scanOutput struct {
	ScanID        string                `json:"scan_id"`
	Blocked       bool                  `json:"blocked"`
	Degraded      bool                  `json:"degraded"`
	SanitizedText string                `json:"sanitized_text"`
	Findings      []domdlp.AuditFinding `json:"findings"`
}

func newScanCmd(flags *rootFlags) *cobra.Command {
	var (
		label string
		actor string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan text from stdin and print the sanitized result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.checkSovereignty(); err != nil {
				return err
			}

			text, err := readLimited(cmd.InOrStdin())
			if err != nil {
				return err
			}

			scanner, err := a.Scanner()
			if err != nil {
				return err
			}
			res := scanner.Scan(cmd.Context(), text, label, actor)

			rec := domdlp.NewAuditRecord(&res)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(scanOutput{
				ScanID:        res.ScanID,
				Blocked:       res.Blocked,
				Degraded:      res.Degraded,
				SanitizedText: res.SanitizedText,
				Findings:      rec.Findings,
			}); err != nil {
				return fmt.Errorf("write result: %w", err)
			}

			if res.Blocked {
				return fmt.Errorf("scan %s: %w", res.ScanID, domain.ErrBlockedContent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "cli", "context label recorded with the scan")
	cmd.Flags().StringVar(&actor, "actor", currentUser(), "actor recorded with the scan")
	return cmd
}

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var (
		docType string
		id      string
		file    string
		meta    map[string]string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Add a document to the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := document.ParseType(docType)
			if err != nil {
				return fmt.Errorf("--type: %w", err)
			}

			a, err := flags.bootstrap()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.checkSovereignty(); err != nil {
				return err
			}

			var src io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file) //nolint:gosec // operator-supplied path
				if err != nil {
					return fmt.Errorf("open %s: %w", file, err)
				}
				defer f.Close()
				src = f
			}
			content, err := readLimited(src)
			if err != nil {
				return err
			}

			stack, err := a.Retrieval(cmd.Context())
			if err != nil {
				return err
			}

			metadata := make(map[string]any, len(meta)+1)
			for k, v := range meta {
				metadata[k] = v
			}
			if file != "-" {
				metadata["source"] = file
			}

			docID, err := stack.engine.AddDocument(cmd.Context(), content, t, id, metadata)
			if err != nil {
				return fmt.Errorf("index document: %w", err)
			}
			a.logger.Info("Indexed document", zap.String("doc_id", docID), zap.String("doc_type", string(t)))
			fmt.Fprintln(cmd.OutOrStdout(), docID)
			return nil
		},
	}

	cmd.Flags().StringVar(&docType, "type", "", "document type ("+typeList()+")")
	cmd.Flags().StringVar(&id, "id", "", "document id (default: content hash)")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "file to index, - for stdin")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// readLimited reads at most document.MaxContentSize bytes and rejects anything larger.
func readLimited(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, document.MaxContentSize+1))
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	if len(data) > document.MaxContentSize {
		return "", domain.NewValidationError("content", len(data), "exceeds maximum size")
	}
	return string(data), nil
}

func typeList() string {
	types := document.Types()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
