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

// Package update executes a verified update claim against the device:
// it writes each manifest component into its resolved target in the
// inactive slot, mirrors untouched redundant partitions so both slots
// stay consistent, and records progress in the version map after every
// component so a crash leaves an accurate record.
package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
	"gopkg.in/tomb.v2"

	"github.com/embedfleet/updated/bootchain"
	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/dirs"
	"github.com/embedfleet/updated/logger"
	"github.com/embedfleet/updated/manifest"
	"github.com/embedfleet/updated/osutil"
	"github.com/embedfleet/updated/slot"
	"github.com/embedfleet/updated/strutil"
	"github.com/embedfleet/updated/versions"
)

// BootController is the part of the bootchain the executor drives
// while staging and finalizing an update.
type BootController interface {
	SetRootfsStatus(st bootchain.RootfsStatus, sl slot.Slot) error
	ResetRetryCountToMax(sl slot.Slot) error
	SetNextBootSlot(sl slot.Slot) error
}

// Options influence how an update run proceeds.
type Options struct {
	// ActiveSlot is the slot the system is running from; components
	// are written to its opposite.
	ActiveSlot slot.Slot
	// Recovery selects the recovery installation phase: only
	// components marked for recovery are written and redundant
	// mirroring is skipped.
	Recovery bool
	// DownloadsDir holds the fetched payloads of remote sources.
	DownloadsDir string
	// VersionMapPath overrides the version map location, for tests.
	VersionMapPath string
	// Transport delivers microcontroller firmware. Updates with a
	// CAN component fail without one.
	Transport Transport
}

// Executor runs one update attempt. Components are written strictly
// one at a time, in manifest order, with the version map persisted
// after each write; that sequencing is what makes the map a usable
// crash checkpoint.
type Executor struct {
	claim *manifest.Claim
	vmap  *versions.Map
	boot  BootController

	active    slot.Slot
	recovery  bool
	downloads string
	vmapPath  string
	transport Transport

	tomb tomb.Tomb
}

// New prepares an executor for the given verified claim.
func New(claim *manifest.Claim, vmap *versions.Map, boot BootController, opts *Options) *Executor {
	if opts == nil {
		opts = &Options{}
	}
	vmapPath := opts.VersionMapPath
	if vmapPath == "" {
		vmapPath = dirs.VersionMapFile
	}
	return &Executor{
		claim:     claim,
		vmap:      vmap,
		boot:      boot,
		active:    opts.ActiveSlot,
		recovery:  opts.Recovery,
		downloads: opts.DownloadsDir,
		vmapPath:  vmapPath,
		transport: opts.Transport,
	}
}

// TargetSlot returns the slot this update writes to.
func (e *Executor) TargetSlot() slot.Slot {
	return e.active.Opposite()
}

// Run executes the update attempt and blocks until it finishes or is
// killed.
func (e *Executor) Run() error {
	e.tomb.Go(e.run)
	return e.tomb.Wait()
}

// Kill aborts the update attempt between component writes.
func (e *Executor) Kill() {
	e.tomb.Kill(nil)
}

func (e *Executor) run() error {
	ctx := e.tomb.Context(nil)
	target := e.TargetSlot()

	if err := e.boot.SetRootfsStatus(bootchain.StatusUpdateInProcess, target); err != nil {
		return fmt.Errorf("cannot mark slot %s as updating: %v", target, err)
	}

	for i := range e.claim.Manifest.Components {
		if err := ctx.Err(); err != nil {
			return err
		}
		mc := &e.claim.Manifest.Components[i]
		if err := e.updateComponent(ctx, mc, target); err != nil {
			return xerrors.Errorf("cannot update component %q: %w", mc.Name, err)
		}
	}

	if e.claim.Manifest.Kind.IsNormal() && !e.recovery {
		if err := e.mirrorNotUpdatedRedundantComponents(ctx, target); err != nil {
			return xerrors.Errorf("cannot mirror redundant components: %w", err)
		}
	}
	return nil
}

// skipPhase reports whether the component's installation phase rules
// it out for this run.
func (e *Executor) skipPhase(mc *manifest.Component) bool {
	switch mc.Phase {
	case manifest.PhaseRecovery:
		return !e.recovery
	default:
		return e.recovery
	}
}

func (e *Executor) updateComponent(ctx context.Context, mc *manifest.Component, target slot.Slot) error {
	if e.skipPhase(mc) {
		logger.Noticef("skipping component %q, installation phase %s does not apply", mc.Name, mc.Phase)
		return nil
	}
	logger.Noticef("updating component %q to %s (%s) in slot %s", mc.Name, mc.VersionUpgrade, strutil.SizeToStr(int64(mc.Size)), target)

	comp, ok := e.claim.SystemComponents[mc.Name]
	if !ok {
		// cross-validation makes this unreachable
		return fmt.Errorf("internal error: component %q has no system description", mc.Name)
	}
	src := e.claim.Source(mc.Name)
	if src == nil {
		return fmt.Errorf("internal error: component %q has no source", mc.Name)
	}

	f, err := e.openSource(src)
	if err != nil {
		return err
	}
	defer f.Close()

	switch comp.Kind() {
	case component.KindGPT:
		err = writeGPT(comp.GPT(), target, f)
	case component.KindRaw:
		err = writeRaw(comp.Raw(), target, f)
	case component.KindCAN:
		err = sendFirmware(ctx, e.transport, comp.CAN(), target, f)
	case component.KindCapsule:
		err = stageCapsule(f, src.UniqueName())
	default:
		err = fmt.Errorf("internal error: unknown component kind")
	}
	if err != nil {
		return err
	}

	e.vmap.SetComponent(target, mc, comp)
	if err := e.vmap.PersistTo(e.vmapPath); err != nil {
		return err
	}
	return nil
}

// openSource opens a component's payload and checks it against the
// claim's declared size and hash.
func (e *Executor) openSource(src *manifest.Source) (*os.File, error) {
	var path string
	if src.URL.IsLocal() {
		path = src.URL.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.downloads, path)
		}
	} else {
		path = filepath.Join(e.downloads, src.UniqueName())
	}

	size, err := osutil.FileSize(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open source for %q: %v", src.Name, err)
	}
	if uint64(size) != src.Size {
		return nil, fmt.Errorf("source for %q has %d bytes, claim declares %d", src.Name, size, src.Size)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open source for %q: %v", src.Name, err)
	}
	if err := checkSource(f, src); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// checkSource verifies the payload's sha256 hash against the claim,
// leaving the file positioned at the start.
func checkSource(f *os.File, src *manifest.Source) error {
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("cannot hash source for %q: %v", src.Name, err)
	}
	if digest := hex.EncodeToString(h.Sum(nil)); digest != src.Hash {
		return fmt.Errorf("source for %q has sha256 %s, claim declares %s", src.Name, digest, src.Hash)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return nil
}

// Finalize records the update's release version and tells the boot
// firmware about the freshly staged slot. For a normal update the
// target slot is marked update-done, its retry budget refilled, and
// the next-boot slot flipped; if a firmware capsule was staged the
// slot flip is left to the capsule mechanism. Full updates only record
// the recovery version.
func (e *Executor) Finalize() error {
	target := e.TargetSlot()

	if e.claim.Manifest.Kind.IsFull() {
		logger.Noticef("finalizing full update, recording recovery version %s", e.claim.Version)
		e.vmap.SetRecoveryRelease(e.claim.Version)
		return e.vmap.PersistTo(e.vmapPath)
	}

	logger.Noticef("finalizing normal update to %s in slot %s", e.claim.Version, target)
	e.vmap.SetSlotRelease(e.claim.Version, target)
	if err := e.vmap.PersistTo(e.vmapPath); err != nil {
		return err
	}

	if err := e.boot.SetRootfsStatus(bootchain.StatusUpdateDone, target); err != nil {
		return fmt.Errorf("cannot mark slot %s as update-done: %v", target, err)
	}
	if err := e.boot.ResetRetryCountToMax(target); err != nil {
		return fmt.Errorf("cannot reset retry count of slot %s: %v", target, err)
	}

	if armed, err := CapsuleArmed(); err != nil {
		return err
	} else if armed {
		logger.Noticef("capsule update armed, leaving slot switch to the firmware")
		return nil
	}

	if err := e.boot.SetNextBootSlot(target); err != nil {
		return fmt.Errorf("cannot set next boot slot to %s: %v", target, err)
	}
	logger.Noticef("next boot slot set to %s", target)
	return nil
}
