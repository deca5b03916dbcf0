package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/isometry/ldaptree/internal/directory"
	"github.com/isometry/ldaptree/internal/ldap"
)

func newShowCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print the attributes of one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, rdn, err := a.split(args[0])
			if err != nil {
				return err
			}
			return show(cmd.Context(), a.stdout, a.dir, base, rdn, output, a.entryOptions()...)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or yaml")
	return cmd
}

func show(ctx context.Context, w io.Writer, dir directory.Directory, base, rdn, output string, opts ...directory.Option) error {
	e, err := directory.Open(ctx, dir, base, rdn, opts...)
	if err != nil {
		return err
	}
	defer e.Discard()

	names, err := e.Attributes(ctx)
	if err != nil {
		return err
	}

	attrs := make(map[string][]string, len(names))
	for _, name := range names {
		values, err := e.Get(ctx, name)
		if err != nil {
			return err
		}
		attrs[name] = displayValues(name, values)
	}

	switch output {
	case "text":
		return renderText(w, e.DN(), names, attrs)
	case "yaml":
		return renderYAML(w, e.DN(), attrs)
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

// displayValues decodes raw values for printing.
func displayValues(name string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = ldap.DecodeValue(name, []byte(v))
	}
	return out
}

func renderText(w io.Writer, dn string, names []string, attrs map[string][]string) error {
	if _, err := fmt.Fprintf(w, "dn: %s\n", dn); err != nil {
		return err
	}
	for _, name := range names {
		for _, v := range attrs[name] {
			if _, err := fmt.Fprintf(w, "%s: %s\n", name, v); err != nil {
				return err
			}
		}
	}
	return nil
}

type yamlEntry struct {
	DN         string              `yaml:"dn"`
	Attributes map[string][]string `yaml:"attributes"`
}

func renderYAML(w io.Writer, dn string, attrs map[string][]string) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlEntry{DN: dn, Attributes: attrs}); err != nil {
		return err
	}
	return enc.Close()
}
