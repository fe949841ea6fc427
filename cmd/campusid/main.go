package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/onoacademic/campusid/internal/app"
	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/infrastructure/bolt"
	"github.com/onoacademic/campusid/internal/infrastructure/logger"
	"github.com/onoacademic/campusid/internal/security"
	"github.com/onoacademic/campusid/internal/service"
	"github.com/onoacademic/campusid/internal/theme"
	"github.com/onoacademic/campusid/internal/validation"
	"github.com/onoacademic/campusid/pkg/config"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	out      io.Writer
	sessions *service.SessionManager
	core     *app.Core
	authz    *security.AuthorizationService
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) < 1 || args[0] == "help" {
		printUsage(out)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return 1
	}
	log := logger.Setup(errOut, cfg.LogLevel)

	local, err := bolt.Open(cfg.LocalCachePath)
	if err != nil {
		fmt.Fprintf(errOut, "failed to open local cache: %v\n", err)
		return 1
	}
	defer local.Close()

	backends, err := app.OpenBackends(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(errOut, "failed to open backends: %v\n", err)
		return 1
	}
	defer backends.Close()

	core := app.NewCore(cfg, backends.Store, log)
	c := &cli{
		out:  out,
		core: core,
		sessions: service.NewSessionManager(
			core.Authn,
			core.Entities,
			local,
			core.Tokens,
			theme.NewResolver(cfg.ThemeDayStartHour, cfg.ThemeDayEndHour),
			core.Audit,
			service.SessionConfig{
				SessionTTL:       cfg.SessionTTL,
				AdminEmailMarker: cfg.AdminEmailMarker,
				DemoPassword:     cfg.DemoPassword,
			},
			log,
		),
		authz: security.NewAuthorizationService(log),
	}

	command, rest := args[0], args[1:]
	switch command {
	case "login":
		err = c.login(ctx, rest)
	case "me":
		err = c.me(ctx)
	case "logout":
		err = c.logout(ctx)
	case "role":
		err = c.role(ctx, rest)
	case "theme":
		err = c.theme(ctx, rest)
	case "password":
		err = c.password(ctx, rest)
	case "validate":
		err = c.validate(rest)
	case "students":
		err = c.roster(ctx, domain.CollectionStudents, rest)
	case "lecturers":
		err = c.roster(ctx, domain.CollectionLecturers, rest)
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n", command)
		printUsage(errOut)
		return 2
	}
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: campusid <command> [arguments]

Commands:
  login -email <email> -password <password>
  me
  logout
  role [student|lecturer|admin]
  theme [show|set <light|dark>|confirm|forget]
  password -current <password> -new <password>
  validate <field> <value>
  students  [list|add|delete <id>]
  lecturers [list|add|delete <id>]
`)
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		fs.PrintDefaults()
		return errors.New("email and password are required")
	}

	res, err := c.sessions.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Logged in as %s (%s, role %s)\n", res.User.Email, res.Source, res.User.CurrentRole)
	return nil
}

func (c *cli) me(ctx context.Context) error {
	sess, err := c.sessions.CurrentSession(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", sess.User.ID)
	fmt.Fprintf(w, "NAME\t%s\n", sess.User.FullName)
	fmt.Fprintf(w, "EMAIL\t%s\n", sess.User.Email)
	fmt.Fprintf(w, "ROLE\t%s\n", sess.CurrentRole)
	fmt.Fprintf(w, "ROLES\t%s\n", joinRoles(sess.AvailableRoles))
	return w.Flush()
}

func (c *cli) logout(ctx context.Context) error {
	if err := c.sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "✓ Logged out")
	return nil
}

func (c *cli) role(ctx context.Context, args []string) error {
	if len(args) == 0 {
		sess, err := c.sessions.CurrentSession(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s (available: %s)\n", sess.CurrentRole, joinRoles(sess.AvailableRoles))
		return nil
	}

	role, err := domain.ParseRole(args[0])
	if err != nil {
		return err
	}
	if _, err := c.sessions.SwitchRole(ctx, role); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Switched to %s\n", role)
	return nil
}

func (c *cli) theme(ctx context.Context, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "show":
		t, src, err := c.sessions.Theme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s (%s)\n", t, src)
	case "set":
		if len(args) < 2 {
			return errors.New("usage: campusid theme set <light|dark>")
		}
		t, err := domain.ParseTheme(args[1])
		if err != nil {
			return err
		}
		if err := c.sessions.SetTheme(ctx, t); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "✓ Theme %s applied for this session; run 'campusid theme confirm' to keep it\n", t)
	case "confirm":
		t, err := c.sessions.ConfirmTheme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "✓ Theme %s saved as your preference\n", t)
	case "forget":
		if err := c.sessions.ForgetTheme(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "✓ Theme preference cleared")
	default:
		return fmt.Errorf("unknown theme command: %s", sub)
	}
	return nil
}

func (c *cli) password(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("password", flag.ContinueOnError)
	fs.SetOutput(c.out)
	current := fs.String("current", "", "current password")
	next := fs.String("new", "", "new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.sessions.ChangePassword(ctx, *current, *next); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "✓ Password changed")
	return nil
}

func (c *cli) validate(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: campusid validate <field> <value>")
	}
	res := validation.ValidateField(args[0], strings.Join(args[1:], " "))
	if !res.IsValid {
		return errors.New(res.Error)
	}
	fmt.Fprintf(c.out, "✓ %s is valid\n", args[0])
	return nil
}

func (c *cli) roster(ctx context.Context, collection string, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	user, err := c.sessions.Me(ctx)
	if err != nil {
		return err
	}
	perm := security.PermReadEntities
	if sub != "list" {
		perm = security.WritePermission(collection)
	}
	if err := c.authz.ValidatePermission(user.CurrentRole, perm); err != nil {
		return err
	}
	ctx = service.WithActor(ctx, service.Actor{UserID: user.ID, Role: user.CurrentRole})
	accessor, _ := c.core.Entities.Collection(collection)

	switch sub {
	case "list":
		recs, err := accessor.List(ctx)
		if err != nil {
			return err
		}
		idField := "student_id"
		if collection == domain.CollectionLecturers {
			idField = "employee_id"
		}
		w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID\tNAME\t%s\tEMAIL\n", strings.ToUpper(idField))
		for _, rec := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.ID(), rec.String("full_name"), rec.String(idField), rec.String("email"))
		}
		return w.Flush()

	case "add":
		form, err := parseProfileFlags(collection, args, c.out)
		if err != nil {
			return err
		}
		rec, err := c.core.Roster.Create(ctx, collection, form)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(c.out, "✓ Created %s\n", rec.ID())

	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: campusid %s delete <id>", collection)
		}
		var ok bool
		if collection == domain.CollectionStudents {
			ok, err = c.core.Roster.DeleteStudent(ctx, args[0])
		} else {
			ok, err = c.core.Roster.DeleteLecturer(ctx, args[0])
		}
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s not found", args[0])
		}
		fmt.Fprintf(c.out, "✓ Deleted %s\n", args[0])

	default:
		return fmt.Errorf("unknown %s command: %s", collection, sub)
	}
	return nil
}

func parseProfileFlags(collection string, args []string, out io.Writer) (domain.Record, error) {
	fs := flag.NewFlagSet(collection+" add", flag.ContinueOnError)
	fs.SetOutput(out)
	fullName := fs.String("full-name", "", "full name in Hebrew")
	email := fs.String("email", "", "email")
	nationalID := fs.String("national-id", "", "national ID (optional)")
	phone := fs.String("phone", "", "phone (optional)")
	tracks := fs.String("tracks", "", "comma separated academic track ids")
	number := fs.String("number", "", "student ID or employee ID")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	trackIDs := []string{}
	for _, t := range strings.Split(*tracks, ",") {
		if t = strings.TrimSpace(t); t != "" {
			trackIDs = append(trackIDs, t)
		}
	}
	form := domain.Record{
		"full_name":          *fullName,
		"email":              *email,
		"national_id":        *nationalID,
		"phone":              *phone,
		"academic_track_ids": trackIDs,
	}
	if collection == domain.CollectionStudents {
		form["student_id"] = *number
	} else {
		form["employee_id"] = *number
	}
	return form, nil
}

// describe renders every field error of a rejected form
func describe(err error) error {
	var formErr *validation.FormError
	if !errors.As(err, &formErr) {
		return err
	}
	lines := make([]string, 0, len(formErr.Errors))
	for _, f := range slices.Sorted(maps.Keys(formErr.Errors)) {
		lines = append(lines, fmt.Sprintf("  %s: %s", f, formErr.Errors[f]))
	}
	return fmt.Errorf("validation failed:\n%s", strings.Join(lines, "\n"))
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}
