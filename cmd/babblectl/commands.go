package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"ping":     ping,
	"ignore":   ignore,
	"announce": announce,
	"plugin":   plugin,
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

// want checks that args holds a subcommand followed by n to m operands.
func want(args []string, n, m int, form string) error {
	if len(args) < n+1 || len(args) > m+1 {
		return usage("%s", form)
	}
	return nil
}

func ping(ctx context.Context, a *app, _ []string) error {
	start := time.Now()
	if err := a.db.Ping(ctx); err != nil {
		return err
	}
	a.printf("ok %s %s\n", a.db.Name(), time.Since(start).Round(time.Microsecond))
	return nil
}

func ignore(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usage("ignore add|rm|ls|check ...")
	}
	switch args[0] {
	case "add":
		if err := want(args, 3, 4, "ignore add <guild> user|channel <id> [by]"); err != nil {
			return err
		}
		by := ""
		if len(args) == 5 {
			by = args[4]
		}
		guild, kind, id := args[1], args[2], args[3]
		var err error
		switch kind {
		case "user":
			_, err = a.ignores.IgnoreUser(ctx, guild, id, by)
		case "channel":
			_, err = a.ignores.IgnoreChannel(ctx, guild, id, by)
		default:
			return usage("ignore add: kind must be user or channel, got %q", kind)
		}
		if err != nil {
			return err
		}
		a.printf("ignoring %s %s in %s\n", kind, id, guild)
	case "rm":
		if err := want(args, 2, 2, "ignore rm <guild> <id>"); err != nil {
			return err
		}
		n, err := a.ignores.Unignore(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		a.printf("removed %d rule(s)\n", n)
	case "ls":
		if err := want(args, 1, 1, "ignore ls <guild>"); err != nil {
			return err
		}
		rules, err := a.ignores.List(ctx, args[1])
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tTARGET\tBY\tSINCE")
		for _, r := range rules {
			kind, target := "user", r.UserID
			if r.ChannelID != "" {
				kind, target = "channel", r.ChannelID
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, kind, target, r.IgnoredBy, r.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	case "check":
		if err := want(args, 3, 3, "ignore check <guild> <channel> <user>"); err != nil {
			return err
		}
		ok, err := a.ignores.IsIgnored(ctx, args[1], args[2], args[3])
		if err != nil {
			return err
		}
		a.printf("%t\n", ok)
	default:
		return usage("unknown ignore command %q", args[0])
	}
	return nil
}

func announce(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usage("announce set|get|rm ...")
	}
	switch args[0] {
	case "set":
		if err := want(args, 2, 2, "announce set <guild> <channel>"); err != nil {
			return err
		}
		ac, err := a.announcements.SetChannel(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		a.printf("announcements for %s go to %s\n", ac.GuildID, ac.ChannelID)
	case "get":
		if err := want(args, 1, 1, "announce get <guild>"); err != nil {
			return err
		}
		ac, ok, err := a.announcements.ForGuild(ctx, args[1])
		if err != nil {
			return err
		}
		if !ok {
			a.printf("no announcement channel for %s\n", args[1])
			return nil
		}
		a.printf("%s (updated %s)\n", ac.ChannelID, ac.UpdatedAt.Format(time.RFC3339))
	case "rm":
		if err := want(args, 1, 1, "announce rm <guild>"); err != nil {
			return err
		}
		ok, err := a.announcements.Remove(ctx, args[1])
		if err != nil {
			return err
		}
		a.printf("removed: %t\n", ok)
	default:
		return usage("unknown announce command %q", args[0])
	}
	return nil
}

// guildScope maps "-" to the global plugin scope.
func guildScope(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

func plugin(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return usage("plugin put|get|rm|ls ...")
	}
	switch args[0] {
	case "put":
		if err := want(args, 4, 4, "plugin put <plugin> <guild> <key> <json>"); err != nil {
			return err
		}
		var value any = args[4]
		if json.Valid([]byte(args[4])) {
			value = json.RawMessage(args[4])
		}
		m, err := a.plugins.Put(ctx, args[1], guildScope(args[2]), args[3], value)
		if err != nil {
			return err
		}
		a.printf("%s/%s = %s\n", m.Plugin, m.Key, m.Value)
	case "get":
		if err := want(args, 3, 3, "plugin get <plugin> <guild> <key>"); err != nil {
			return err
		}
		m, ok, err := a.plugins.Get(ctx, args[1], guildScope(args[2]), args[3])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s/%s not set", args[1], args[3])
		}
		a.printf("%s\n", m.Value)
	case "rm":
		if err := want(args, 3, 3, "plugin rm <plugin> <guild> <key>"); err != nil {
			return err
		}
		ok, err := a.plugins.Delete(ctx, args[1], guildScope(args[2]), args[3])
		if err != nil {
			return err
		}
		a.printf("removed: %t\n", ok)
	case "ls":
		if err := want(args, 2, 2, "plugin ls <plugin> <guild>"); err != nil {
			return err
		}
		records, err := a.plugins.List(ctx, args[1], guildScope(args[2]))
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tVALUE")
		for _, m := range records {
			fmt.Fprintf(tw, "%s\t%s\n", m.Key, m.Value)
		}
		return tw.Flush()
	default:
		return usage("unknown plugin command %q", args[0])
	}
	return nil
}
