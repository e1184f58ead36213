// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025-2026 Embedfleet Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"fmt"

	"github.com/jessevdk/go-flags"

	"github.com/embedfleet/updated/bootchain"
	"github.com/embedfleet/updated/slot"
)

type cmdStatus struct {
	Positional struct {
		Slot string `positional-arg-name:"[<slot>]"`
	} `positional-args:"yes"`
}

func (c *cmdStatus) Execute(args []string) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	sl, err := parseSlotArg(ctrl, c.Positional.Slot)
	if err != nil {
		return err
	}
	st, err := ctrl.RootfsStatus(sl)
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, st)
	return nil
}

type cmdSetStatus struct {
	Positional struct {
		Status string `positional-arg-name:"<status>"`
		Slot   string `positional-arg-name:"[<slot>]"`
	} `positional-args:"yes" required:"1"`
}

func (c *cmdSetStatus) Execute(args []string) error {
	st, err := bootchain.ParseRootfsStatus(c.Positional.Status)
	if err != nil {
		return err
	}
	ctrl, err := newController()
	if err != nil {
		return err
	}
	sl, err := parseSlotArg(ctrl, c.Positional.Slot)
	if err != nil {
		return err
	}
	return ctrl.SetRootfsStatus(st, sl)
}

type cmdMarkOK struct {
	Positional struct {
		Slot string `positional-arg-name:"[<slot>]"`
	} `positional-args:"yes"`
}

func (c *cmdMarkOK) Execute(args []string) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	sl, err := parseSlotArg(ctrl, c.Positional.Slot)
	if err != nil {
		return err
	}
	return ctrl.MarkSlotOK(sl)
}

type cmdMarkUnbootable struct {
	Positional struct {
		Slot string `positional-arg-name:"<slot>"`
	} `positional-args:"yes" required:"1"`
}

func (c *cmdMarkUnbootable) Execute(args []string) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	sl, err := slot.Parse(c.Positional.Slot)
	if err != nil {
		return err
	}
	return ctrl.MarkSlotUnbootable(sl)
}

type cmdRetryCount struct {
	Max bool `long:"max" description:"print the maximum retry count"`

	Positional struct {
		Slot string `positional-arg-name:"[<slot>]"`
	} `positional-args:"yes"`
}

func (c *cmdRetryCount) Execute(args []string) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	var count byte
	if c.Max {
		count, err = ctrl.MaxRetryCount()
	} else {
		var sl slot.Slot
		sl, err = parseSlotArg(ctrl, c.Positional.Slot)
		if err != nil {
			return err
		}
		count, err = ctrl.RetryCount(sl)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, count)
	return nil
}

func addCommands(parser *flags.Parser) {
	addSlotCommands(parser)
	mustAddCommand(parser, "status", "Print a slot's rootfs status", &cmdStatus{})
	mustAddCommand(parser, "set-status", "Set a slot's rootfs status", &cmdSetStatus{})
	mustAddCommand(parser, "mark-ok", "Mark a slot's rootfs healthy and refill its retry budget", &cmdMarkOK{})
	mustAddCommand(parser, "mark-unbootable", "Mark a slot's rootfs unbootable and exhaust its retry budget", &cmdMarkUnbootable{})
	mustAddCommand(parser, "retry-count", "Print a slot's remaining boot retries", &cmdRetryCount{})
}
