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

	"github.com/embedfleet/updated/slot"
)

type cmdCurrent struct{}

func (c *cmdCurrent) Execute(args []string) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	sl, err := ctrl.CurrentBootSlot()
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, sl)
	return nil
}

type cmdNext struct{}

func (c *cmdNext) Execute(args []string) error {
	ctrl, err := newController()
	if err != nil {
		return err
	}
	sl, err := ctrl.NextBootSlot()
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, sl)
	return nil
}

type cmdSetNext struct {
	Positional struct {
		Slot string `positional-arg-name:"<slot>"`
	} `positional-args:"yes" required:"yes"`
}

func (c *cmdSetNext) Execute(args []string) error {
	sl, err := slot.Parse(c.Positional.Slot)
	if err != nil {
		return err
	}
	ctrl, err := newController()
	if err != nil {
		return err
	}
	// the slot is marked healthy first so the firmware does not
	// immediately fall back
	return ctrl.SwitchSlot(sl)
}

func addSlotCommands(parser *flags.Parser) {
	mustAddCommand(parser, "current", "Print the currently booted slot", &cmdCurrent{})
	mustAddCommand(parser, "next", "Print the slot the firmware will boot next", &cmdNext{})
	mustAddCommand(parser, "set-next", "Mark a slot healthy and boot it next", &cmdSetNext{})
}

func mustAddCommand(parser *flags.Parser, name, short string, data interface{}) {
	if _, err := parser.AddCommand(name, short, "", data); err != nil {
		panic(err)
	}
}
