package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"streetsketch/core-go/internal/document"
	"streetsketch/core-go/internal/events"
	"streetsketch/core-go/internal/layers"
)

const defaultOrigin = "http://localhost:8081/"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sketchctl",
		Short:        "Inspect and convert streetsketch map documents",
		SilenceUsage: true,
	}
	root.AddCommand(
		newValidateCmd(),
		newShareCmd(),
		newDecodeCmd(),
		newExportCmd(),
		newQRCmd(),
	)
	return root
}

// loadDocument reads and validates a document file; "-" reads stdin.
func loadDocument(cmd *cobra.Command, path string) ([]byte, *document.Parsed, *layers.Registry, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	reg := layers.DefaultRegistry(events.NewRouter())
	parsed, err := document.Parse(data, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return data, parsed, reg, nil
}

func shareURL(origin, fragment string) string {
	return origin + "#" + fragment
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a document loads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, parsed, _, err := loadDocument(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d features, %d active layers\n",
				parsed.Settings.Title, parsed.FeatureCount(), len(parsed.Settings.ActiveLayers))
			return nil
		},
	}
}

func newShareCmd() *cobra.Command {
	var (
		origin   string
		copyLink bool
	)
	cmd := &cobra.Command{
		Use:   "share <file>",
		Short: "Print the share link for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, parsed, reg, err := loadDocument(cmd, args[0])
			if err != nil {
				return err
			}
			parsed.Apply(reg)
			data, err := document.Marshal(parsed.Settings, reg)
			if err != nil {
				return err
			}
			fragment, err := document.EncodeShareLink(data)
			if err != nil {
				return err
			}
			link := shareURL(origin, fragment)
			if copyLink {
				if err := clipboard.WriteAll(link); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	cmd.Flags().StringVar(&origin, "origin", defaultOrigin, "editor URL the link opens")
	cmd.Flags().BoolVar(&copyLink, "copy", false, "also copy the link to the clipboard")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "decode <link-or-fragment>",
		Short: "Decode a share link back into a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragment := args[0]
			if i := strings.IndexByte(fragment, '#'); i >= 0 {
				fragment = fragment[i+1:]
			}
			data, err := document.DecodeShareLink(fragment)
			if err != nil {
				return err
			}
			reg := layers.DefaultRegistry(events.NewRouter())
			if _, err := document.Parse(data, reg); err != nil {
				return err
			}

			var pretty map[string]any
			if err := json.Unmarshal(data, &pretty); err != nil {
				return err
			}
			formatted, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			formatted = append(formatted, '\n')
			if out == "" {
				_, err = cmd.OutOrStdout().Write(formatted)
				return err
			}
			return os.WriteFile(out, formatted, 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the document to a file")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Merge every layer into one GeoJSON FeatureCollection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, parsed, reg, err := loadDocument(cmd, args[0])
			if err != nil {
				return err
			}
			parsed.Apply(reg)
			data, err := document.ExportGeoJSON(reg).MarshalJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func newQRCmd() *cobra.Command {
	var (
		origin string
		out    string
		size   int
	)
	cmd := &cobra.Command{
		Use:   "qr <file>",
		Short: "Render the share link of a document as a PNG QR code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, parsed, reg, err := loadDocument(cmd, args[0])
			if err != nil {
				return err
			}
			parsed.Apply(reg)
			data, err := document.Marshal(parsed.Settings, reg)
			if err != nil {
				return err
			}
			fragment, err := document.EncodeShareLink(data)
			if err != nil {
				return err
			}
			if err := qrcode.WriteFile(shareURL(origin, fragment), qrcode.Low, size, out); err != nil {
				return fmt.Errorf("render qr code: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&origin, "origin", defaultOrigin, "editor URL the link opens")
	cmd.Flags().StringVarP(&out, "output", "o", "share.png", "PNG file to write")
	cmd.Flags().IntVar(&size, "size", 256, "image size in pixels")
	return cmd
}
