package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/qtadmin/internal/i18n"
	"github.com/pavelanni/qtadmin/internal/model"
	"github.com/pavelanni/qtadmin/internal/session"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password, or with a Google identity",
		RunE:  run(runLogin),
	}
	f := cmd.Flags()
	f.String("email", "", "Account email")
	f.String("password", "", "Account password (or set QTADMIN_PASSWORD)")
	f.String("google-uid", "", "Google account UID from a completed sign-in")
	f.String("google-name", "", "Display name from the Google sign-in")
	f.String("google-photo", "", "Photo URL from the Google sign-in")
	return cmd
}

func runLogin(a *app, _ []string) error {
	ctx := a.ctx()
	email := a.v.GetString("email")

	var res model.Result[*model.Profile]
	if uid := a.v.GetString("google-uid"); uid != "" {
		res = a.session.LoginWithProvider(ctx, session.StaticProvider{
			UID:      uid,
			Email:    email,
			Name:     a.v.GetString("google-name"),
			PhotoURL: a.v.GetString("google-photo"),
		})
	} else {
		password := a.v.GetString("password")
		if email == "" || password == "" {
			return errors.New("--email and --password are required")
		}
		res = a.session.Login(ctx, email, password)
	}
	if !res.Success {
		return failure(res)
	}
	if a.wantJSON() {
		return a.printJSON(a.session.Snapshot())
	}
	a.println(appI18n.Td(ctx, "LoggedInAs", map[string]any{
		"Email": res.Data.Email,
		"Role":  appI18n.Label(ctx, "Role", string(res.Data.Role), string(res.Data.Role)),
	}))
	return nil
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in to it",
		RunE:  run(runRegister),
	}
	f := cmd.Flags()
	f.String("email", "", "Account email")
	f.String("password", "", "Account password (or set QTADMIN_PASSWORD)")
	f.String("role", string(model.RoleTeacher), "Account role (teacher, parent, student)")
	f.String("name", "", "Display name")
	f.String("phone", "", "Phone number")
	f.String("grade", "", "Grade (students)")
	f.String("school", "", "School (students)")
	f.String("board", "", "Education board (students)")
	return cmd
}

func runRegister(a *app, _ []string) error {
	ctx := a.ctx()
	reg := model.Registration{
		Email:    strings.TrimSpace(a.v.GetString("email")),
		Password: a.v.GetString("password"),
		Role:     model.Role(strings.ToLower(a.v.GetString("role"))),
		Name:     a.v.GetString("name"),
		Phone:    a.v.GetString("phone"),
		Grade:    a.v.GetString("grade"),
		School:   a.v.GetString("school"),
		Board:    a.v.GetString("board"),
	}
	if reg.Email == "" || reg.Password == "" {
		return errors.New("--email and --password are required")
	}
	switch reg.Role {
	case model.RoleTeacher, model.RoleParent, model.RoleStudent:
	default:
		return fmt.Errorf("%w: %q", session.ErrUnknownRole, reg.Role)
	}

	res := a.session.Register(ctx, reg)
	if !res.Success {
		return failure(res)
	}
	if a.wantJSON() {
		return a.printJSON(res.Data)
	}
	if res.Data.Profile == nil {
		a.println(appI18n.Td(ctx, "RegisteredNoLogin", map[string]any{"Error": res.Data.LoginError}))
		return nil
	}
	a.println(appI18n.Td(ctx, "Registered", map[string]any{"Email": reg.Email}))
	return nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: run(func(a *app, _ []string) error {
			a.session.Logout()
			a.println(appI18n.T(a.ctx(), "LoggedOut"))
			return nil
		}),
	}
}

// restore loads the saved session and fails when there is none.
func (a *app) restore() (*model.Profile, error) {
	res := a.session.Restore(a.ctx())
	if !res.Success {
		return nil, failure(res)
	}
	if res.Data == nil {
		return nil, errors.New(appI18n.T(a.ctx(), "NotLoggedIn"))
	}
	return res.Data, nil
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in principal",
		RunE: run(func(a *app, _ []string) error {
			p, err := a.restore()
			if err != nil {
				return err
			}
			if a.wantJSON() {
				return a.printJSON(a.session.Snapshot())
			}
			ctx := a.ctx()
			rows := [][]string{
				{"ID", p.ID},
				{"Email", p.Email},
				{"Name", p.Name},
				{"Role", appI18n.Label(ctx, "Role", string(p.Role), string(p.Role))},
			}
			if c, ok := a.session.ActiveChild(); ok {
				rows = append(rows, []string{"Active child", c.Name + " (" + c.ID + ")"})
			}
			return a.table([]string{"FIELD", "VALUE"}, rows)
		}),
	}
}

func childrenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "children",
		Short: "List the children visible to the logged-in principal",
		RunE: run(func(a *app, _ []string) error {
			p, err := a.restore()
			if err != nil {
				return err
			}
			if a.wantJSON() {
				return a.printJSON(p.Children)
			}
			if len(p.Children) == 0 {
				a.println(appI18n.T(a.ctx(), "NoChildren"))
				return nil
			}
			active, _ := a.session.ActiveChild()
			rows := make([][]string, 0, len(p.Children))
			for _, c := range p.Children {
				mark := ""
				if c.ID == active.ID {
					mark = "*"
				}
				rows = append(rows, []string{mark, c.ID, c.Name, c.Grade, c.School, c.Board})
			}
			return a.table([]string{"", "ID", "NAME", "GRADE", "SCHOOL", "BOARD"}, rows)
		}),
	}
}

func childCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "child",
		Short: "Manage the active child",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "select <id>",
		Short: "Make a child the active one",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(a *app, args []string) error {
			if _, err := a.restore(); err != nil {
				return err
			}
			if err := a.session.SelectChild(args[0]); err != nil {
				return err
			}
			c, _ := a.session.ActiveChild()
			if a.wantJSON() {
				return a.printJSON(c)
			}
			a.println(appI18n.Td(a.ctx(), "ActiveChild", map[string]any{"Name": c.Name, "ID": c.ID}))
			return nil
		}),
	})
	return cmd
}
