package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/prefstore/internal/prefs"
	"github.com/dshills/prefstore/internal/prefs/codec"
)

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "show [section]",
		Short:     "Print the whole document or one section",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: prefs.Sections(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(st *prefs.Store) error {
				doc, err := st.Export()
				if err != nil {
					return err
				}
				if len(args) == 0 {
					c.printJSON([]byte(doc))
					return nil
				}
				if !slices.Contains(prefs.Sections(), args[0]) {
					return fmt.Errorf("unknown section %q (want one of %s)", args[0], strings.Join(prefs.Sections(), ", "))
				}
				c.printJSON([]byte(gjson.Get(doc, args[0]).Raw))
				return nil
			})
		},
	}
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "get <path>",
		Short:   "Print one setting, e.g. sensory.fontSize",
		Example: "  prefsctl get ai.tone\n  prefsctl get metadata",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(st *prefs.Store) error {
				doc, err := st.Export()
				if err != nil {
					return err
				}
				res := gjson.Get(doc, args[0])
				if !res.Exists() {
					return fmt.Errorf("no setting at %q", args[0])
				}
				if res.IsObject() || res.IsArray() {
					c.printJSON([]byte(res.Raw))
					return nil
				}
				_, err = fmt.Fprintln(c.out, res.String())
				return err
			})
		},
	}
}

func newSetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Change one setting",
		Long: `Change one setting. The value is read as JSON when it parses as JSON
(numbers, booleans, quoted strings, objects) and as a plain string otherwise.`,
		Example: "  prefsctl set sensory.fontSize 1.5\n  prefsctl set ai.tone casual",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := buildPartial(args[0], args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withStore(ctx, func(st *prefs.Store) error {
				if err := st.UpdateJSON(ctx, []byte(partial)); err != nil {
					return err
				}
				if err := c.commit(ctx, st); err != nil {
					return err
				}
				c.success("%s updated", args[0])
				return nil
			})
		},
	}
}

// buildPartial turns a dotted path and a value into a partial document.
func buildPartial(path, value string) (string, error) {
	var (
		partial string
		err     error
	)
	if gjson.Valid(value) {
		partial, err = sjson.SetRaw("{}", path, value)
	} else {
		partial, err = sjson.Set("{}", path, value)
	}
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	return partial, nil
}

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore every setting to its default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withStore(ctx, func(st *prefs.Store) error {
				if err := st.Reset(ctx); err != nil {
					return err
				}
				if err := c.commit(ctx, st); err != nil {
					return err
				}
				c.success("preferences reset to defaults")
				return nil
			})
		},
	}
}

func newExportCmd(c *cli) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the document as JSON, YAML or TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := codec.ParseFormat(format)
			if err != nil {
				return err
			}
			return c.withStore(cmd.Context(), func(st *prefs.Store) error {
				data, err := st.ExportFormat(f)
				if err != nil {
					return err
				}
				if !bytes.HasSuffix(data, []byte("\n")) {
					data = append(data, '\n')
				}
				if output == "" {
					_, err = c.out.Write(data)
					return err
				}
				if err := os.WriteFile(output, data, 0o600); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				c.success("exported to %s", output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(codec.JSON), "output format (json, yaml, toml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newImportCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the document with an exported one",
		Long: `Replace the document with an exported one. Older versions are migrated
and unknown fields are kept under metadata.preserved. The format defaults
to the file extension, or JSON when reading stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			f, err := importFormat(format, src)
			if err != nil {
				return err
			}
			data, err := c.readSource(src)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withStore(ctx, func(st *prefs.Store) error {
				if err := st.ImportFormat(ctx, f, data); err != nil {
					return err
				}
				if err := c.commit(ctx, st); err != nil {
					return err
				}
				c.success("imported %s into %q", src, st.Key())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "input format (json, yaml, toml)")
	return cmd
}

func importFormat(flag, src string) (codec.Format, error) {
	if flag != "" || src == "-" {
		return codec.ParseFormat(flag)
	}
	switch strings.ToLower(filepath.Ext(src)) {
	case ".yaml", ".yml":
		return codec.YAML, nil
	case ".toml":
		return codec.TOML, nil
	default:
		return codec.JSON, nil
	}
}

func (c *cli) readSource(src string) ([]byte, error) {
	if src == "-" {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src, err)
	}
	return data, nil
}
