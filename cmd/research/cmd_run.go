package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"research-assistant/internal/config"
	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	var (
		prompt      string
		imagePath   string
		contextPath string
		offline     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Research one prompt locally and print the artifacts",
		Example: `  research run --prompt "Explain quantum entanglement"
  research run --prompt "What is in this picture?" --image photo.jpg --context notes.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := []func(*config.Config){config.ForceImmediate}
			if offline {
				overrides = append(overrides, func(c *config.Config) { c.AI.Offline = true })
			}
			cfg, logger, err := root.load(overrides...)
			if err != nil {
				return err
			}

			input := model.JobInput{Prompt: prompt}
			if contextPath != "" {
				b, err := os.ReadFile(contextPath)
				if err != nil {
					return fmt.Errorf("read context: %w", err)
				}
				input.ContextText = string(b)
			}
			if imagePath != "" {
				img, err := readImageFile(imagePath)
				if err != nil {
					return err
				}
				input.Image = img
			}

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			id, runErr := a.jobs.Submit(cmd.Context(), input)
			if id == "" {
				return runErr
			}
			fmt.Fprintf(out, "job %s\n", id)
			if runErr != nil {
				fmt.Fprintf(out, "failed: %s\n", domain.FormatError(runErr))
			}
			files, err := a.jobs.ListArtifacts(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, f := range files {
				if a.fsStore != nil {
					fmt.Fprintf(out, "  %s\n", filepath.Join(a.fsStore.Root(), id, f))
				} else {
					fmt.Fprintf(out, "  %s/%s\n", id, f)
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "research question (required)")
	cmd.Flags().StringVar(&imagePath, "image", "", "optional image file")
	cmd.Flags().StringVar(&contextPath, "context", "", "optional file with extra context text")
	cmd.Flags().BoolVar(&offline, "offline", false, "use canned model responses")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func readImageFile(path string) (*model.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image file is empty")
	}
	return &model.Image{Data: data, MIMEType: http.DetectContentType(data)}, nil
}
