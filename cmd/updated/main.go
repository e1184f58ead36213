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
	"crypto/ed25519"
	"fmt"
	"io"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/jessevdk/go-flags"

	"github.com/embedfleet/updated/bootchain"
	"github.com/embedfleet/updated/logger"
	"github.com/embedfleet/updated/manifest"
	"github.com/embedfleet/updated/trust"
	"github.com/embedfleet/updated/update"
	"github.com/embedfleet/updated/versions"
)

var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr

	sdNotify = daemon.SdNotify
)

const (
	shortHelp = "Execute a signed update claim"
	longHelp  = `
updated verifies a signed update claim and writes its components into
the inactive slot, then hands the slot switch to the boot firmware.
`
)

type options struct {
	Config   string `long:"config" description:"settings file" default-mask:"/etc/updated.conf"`
	Recovery bool   `long:"recovery" description:"run the recovery installation phase"`
	DryRun   bool   `long:"dry-run" description:"verify and validate the claim, write nothing"`

	Positional struct {
		Claim string `positional-arg-name:"<claim>" description:"claim document to execute"`
	} `positional-args:"yes" required:"yes"`
}

func init() {
	if err := logger.SimpleSetup(); err != nil {
		fmt.Fprintf(Stderr, "WARNING: failed to activate logging: %v\n", err)
	}
}

// verifyingKey selects the pinned key for the configured environment.
func verifyingKey(env string) (ed25519.PublicKey, error) {
	keys := trust.Keys()
	switch env {
	case "production":
		return keys.Production, nil
	case "staging":
		return keys.Staging, nil
	}
	return nil, fmt.Errorf("cannot use unknown signing environment %q", env)
}

func run(args []string) error {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = shortHelp
	parser.LongDescription = longHelp
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	settings, err := loadSettings(opts.Config)
	if err != nil {
		return err
	}
	if opts.Recovery {
		settings.Recovery = true
	}

	key, err := verifyingKey(settings.Environment)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.Positional.Claim)
	if err != nil {
		return fmt.Errorf("cannot read claim: %v", err)
	}
	claim, err := manifest.VerifyClaim(data, key)
	if err != nil {
		return err
	}
	logger.Noticef("claim for version %s verified against the %s key", claim.Version, settings.Environment)

	ctrl, err := bootchain.NewController()
	if err != nil {
		return err
	}
	active, err := ctrl.CurrentBootSlot()
	if err != nil {
		return fmt.Errorf("cannot determine active slot: %v", err)
	}

	vmap, err := versions.Load()
	if err != nil {
		return err
	}
	if err := update.ValidateVersions(claim, vmap, active); err != nil {
		return err
	}
	if opts.DryRun {
		fmt.Fprintf(Stdout, "claim for version %s is valid\n", claim.Version)
		return nil
	}

	if _, err := sdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debugf("cannot notify systemd: %v", err)
	}

	ex := update.New(claim, vmap, ctrl, &update.Options{
		ActiveSlot:   active,
		Recovery:     settings.Recovery,
		DownloadsDir: settings.DownloadsDir,
	})
	if err := ex.Run(); err != nil {
		return err
	}
	if err := ex.Finalize(); err != nil {
		return err
	}
	logger.Noticef("update to %s complete", claim.Version)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
