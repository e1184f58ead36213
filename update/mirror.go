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

package update

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/embedfleet/updated/component"
	"github.com/embedfleet/updated/logger"
	"github.com/embedfleet/updated/slot"
	"github.com/embedfleet/updated/strutil"
)

// mirrorNotUpdatedRedundantComponents copies every redundant partition
// the manifest did not touch from the active slot into the target
// slot, so that after the slot switch the then-inactive slot is a
// complete fallback. The version map is updated and persisted after
// each copied component.
func (e *Executor) mirrorNotUpdatedRedundantComponents(ctx context.Context, target slot.Slot) error {
	for _, name := range strutil.SortedKeys(e.claim.SystemComponents) {
		if err := ctx.Err(); err != nil {
			return err
		}
		comp := e.claim.SystemComponents[name]
		if !comp.IsRedundant() || e.claim.Manifest.HasComponent(name) {
			continue
		}
		if comp.Kind() != component.KindGPT {
			// only block-level components can be copied from here
			logger.Noticef("cannot mirror redundant component %q of kind %s, skipping", name, comp.Kind())
			continue
		}
		logger.Noticef("mirroring redundant component %q from slot %s to slot %s", name, e.active, target)
		if err := mirrorGPT(comp.GPT(), e.active, target); err != nil {
			return fmt.Errorf("cannot mirror component %q: %v", name, err)
		}
		if e.vmap.MirrorRedundantComponentVersion(name, target) {
			if err := e.vmap.PersistTo(e.vmapPath); err != nil {
				return err
			}
		} else {
			logger.Noticef("component %q has no redundant version map entry, leaving as is", name)
		}
	}
	return nil
}

// mirrorGPT copies the partition's active copy over its target copy.
func mirrorGPT(g *component.GPT, active, target slot.Slot) error {
	parts, err := g.ReadPartitionTable()
	if err != nil {
		return err
	}
	activePart, err := g.FindPartition(parts, active)
	if err != nil {
		return err
	}

	dev, err := os.Open(g.Device.Path())
	if err != nil {
		return err
	}
	defer dev.Close()

	src := io.NewSectionReader(dev, int64(activePart.StartOffset), int64(activePart.Size))
	return writeGPT(g, target, src)
}
