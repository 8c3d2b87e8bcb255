package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
)

func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	nu := user.NewUser{
		Name:            core.CleanString(name),
		Username:        core.CleanString(uname, true /* lower */),
		Email:           core.CleanString(email, true /* lower */),
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if isAdmin {
		nu.Roles = user.AllRoles
	}
	if err := nu.Validate(); err != nil {
		return err
	}
	if _, err := cli.usrSvc.Create(context.Background(), nu); err != nil {
		return errors.Wrap(err, "creating user")
	}
	return nil
}

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	uu := user.UpdateUser{Password: pwd, PasswordConfirm: pwd}
	if _, err := cli.usrSvc.Update(ctx, usr.ID, uu); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return nil
}
