package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isometry/ldaptree/internal/directory"
)

// assignment is every value given for one attribute, in command line order.
type assignment struct {
	attr   string
	values []string
}

// parseAssignments groups attr=value arguments by attribute. Attribute names
// are matched case-insensitively and keep their first spelling.
func parseAssignments(args []string) ([]assignment, error) {
	var out []assignment
	index := map[string]int{}

	for _, arg := range args {
		attr, value, ok := strings.Cut(arg, "=")
		attr = strings.TrimSpace(attr)
		if !ok || attr == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected attr=value", arg)
		}

		key := strings.ToLower(attr)
		if i, seen := index[key]; seen {
			out[i].values = append(out[i].values, value)
			continue
		}
		index[key] = len(out)
		out = append(out, assignment{attr: attr, values: []string{value}})
	}
	return out, nil
}

type setOptions struct {
	assign []string
	add    []string
	unset  []string
	create bool
	dryRun bool
}

func newSetCommand(a *app) *cobra.Command {
	var o setOptions

	cmd := &cobra.Command{
		Use:   "set <name> [attr=value...]",
		Short: "Change the attributes of an entry",
		Long: `Replace, add or remove attribute values of one entry and save the result
with at most one request per kind of change. Repeating an attribute gives it
several values. An attribute may take part in only one kind of change:
naming it in more than one of attr=value, --add and --unset is an error. With
--dry-run the pending changes are printed as LDIF and nothing is sent.`,
		Example: `  ldaptree set uid=alice,ou=People mail=alice@example.com --unset description
  ldaptree set uid=bob,ou=People --create objectClass=top objectClass=inetOrgPerson cn=Bob sn=Smith`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, rdn, err := a.split(args[0])
			if err != nil {
				return err
			}
			o.assign = args[1:]

			extra := []directory.Option{}
			if o.create {
				extra = append(extra, directory.WithCreate())
			}
			return set(cmd.Context(), a.stdout, a.dir, base, rdn, o, a.entryOptions(extra...)...)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&o.add, "add", nil, "attr=value to add to the existing values (repeatable)")
	flags.StringSliceVar(&o.unset, "unset", nil, "attribute to remove (repeatable)")
	flags.BoolVar(&o.create, "create", false, "create the entry if it does not exist")
	flags.BoolVar(&o.dryRun, "dry-run", false, "print the changes as LDIF instead of saving them")

	return cmd
}

func set(ctx context.Context, w io.Writer, dir directory.Directory, base, rdn string, o setOptions, opts ...directory.Option) error {
	replaces, err := parseAssignments(o.assign)
	if err != nil {
		return err
	}
	adds, err := parseAssignments(o.add)
	if err != nil {
		return err
	}
	if len(replaces)+len(adds)+len(o.unset) == 0 {
		return fmt.Errorf("nothing to change")
	}
	if err := checkConflicts(replaces, adds, o.unset); err != nil {
		return err
	}

	e, err := directory.Open(ctx, dir, base, rdn, opts...)
	if err != nil {
		return err
	}
	defer e.Discard()

	for _, a := range replaces {
		if err := e.Set(ctx, a.attr, a.values...); err != nil {
			return err
		}
	}
	for _, a := range adds {
		if err := e.Add(ctx, a.attr, a.values...); err != nil {
			return err
		}
	}
	for _, attr := range o.unset {
		if err := e.Unset(ctx, strings.TrimSpace(attr)); err != nil {
			return err
		}
	}

	diff, err := e.Diff(ctx)
	if err != nil {
		return err
	}

	if o.dryRun {
		var record string
		if e.Exists() {
			record, err = diff.LDIF(e.DN())
		} else {
			record, err = diff.AddLDIF(e.DN())
		}
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, record)
		return err
	}

	created := !e.Exists()
	if err := e.Save(ctx); err != nil {
		return err
	}

	switch {
	case diff.Empty(), !e.Exists():
		_, err = fmt.Fprintf(w, "%s: no changes\n", e.DN())
	case created:
		_, err = fmt.Fprintf(w, "%s: created\n", e.DN())
	default:
		_, err = fmt.Fprintf(w, "%s: %d attribute(s) changed\n", e.DN(), len(diff))
	}
	return err
}

// checkConflicts rejects an attribute named by more than one kind of change.
func checkConflicts(replaces, adds []assignment, unset []string) error {
	seen := map[string]string{}
	claim := func(attr, kind string) error {
		key := strings.ToLower(strings.TrimSpace(attr))
		if prev, ok := seen[key]; ok && prev != kind {
			return fmt.Errorf("attribute %q given to both %s and %s", attr, prev, kind)
		}
		seen[key] = kind
		return nil
	}

	for _, a := range replaces {
		if err := claim(a.attr, "attr=value"); err != nil {
			return err
		}
	}
	for _, a := range adds {
		if err := claim(a.attr, "--add"); err != nil {
			return err
		}
	}
	for _, attr := range unset {
		if err := claim(attr, "--unset"); err != nil {
			return err
		}
	}
	return nil
}
