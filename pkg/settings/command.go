package settings

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const commandUsage = `usage:
  get <key>
  set <key> <value> [description]
  disable <key>`

// RunCommand applies one operator command to the store and writes the result
// to out.
func RunCommand(ctx context.Context, s *Store, args []string, out io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("missing arguments\n%s", commandUsage)
	}
	key := args[1]
	switch args[0] {
	case "get":
		value, err := s.String(ctx, key, "")
		if err != nil {
			return err
		}
		if value == "" {
			fmt.Fprintf(out, "%s is not set\n", key)
			return nil
		}
		fmt.Fprintf(out, "%s = %s\n", key, value)
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("set needs a value\n%s", commandUsage)
		}
		if err := s.Set(ctx, key, args[2], strings.Join(args[3:], " ")); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s = %s\n", key, args[2])
	case "disable":
		if err := s.Disable(ctx, key); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s disabled\n", key)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], commandUsage)
	}
	return nil
}
