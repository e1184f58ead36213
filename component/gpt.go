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

package component

import (
	"fmt"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/gpt"

	"github.com/embedfleet/updated/slot"
	"github.com/embedfleet/updated/strutil"
)

// LogicalBlockSize is the logical block size used for all partition
// byte-offset and length arithmetic. All supported devices use 512-byte
// logical blocks.
const LogicalBlockSize = 512

// Partition is a single GPT partition entry reduced to what the update
// engine needs: its label and its byte range on the device.
type Partition struct {
	Name string
	// StartOffset is the byte offset of the partition's first block.
	StartOffset uint64
	// Size is the partition length in bytes.
	Size uint64
}

// PartitionNames returns the partition labels that may match the
// component in the given slot, in order of preference.
//
// A redundant component "rootfs" resolves to "A_rootfs" in slot A; the
// legacy scheme "rootfs_a" is also accepted when scanning. A single
// component resolves to its bare label for either slot.
func (g *GPT) PartitionNames(sl slot.Slot) []string {
	if g.Redundancy == Redundant {
		return []string{
			fmt.Sprintf("%s_%s", sl.Label(), g.Label),
			fmt.Sprintf("%s_%s", g.Label, sl.String()),
		}
	}
	return []string{g.Label}
}

// PartitionNotFoundError is returned when no partition on the device
// matches any of the resolved names for a component and slot.
type PartitionNotFoundError struct {
	Device string
	Names  []string
}

func (e *PartitionNotFoundError) Error() string {
	return fmt.Sprintf("cannot find partition named %s on device %q", strutil.Quoted(e.Names), e.Device)
}

// ReadPartitionTable opens the component's device read-only and returns
// its GPT partition entries. A missing device node or a device without
// a GPT is a hard error.
func (g *GPT) ReadPartitionTable() ([]Partition, error) {
	path, err := checkDeviceNode(g.Device)
	if err != nil {
		return nil, err
	}

	d, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly), diskfs.WithSectorSize(LogicalBlockSize))
	if err != nil {
		return nil, fmt.Errorf("cannot open device %q: %v", path, err)
	}
	defer d.File.Close()

	table, err := d.GetPartitionTable()
	if err != nil {
		return nil, fmt.Errorf("cannot read partition table of device %q: %v", path, err)
	}
	gptTable, ok := table.(*gpt.Table)
	if !ok {
		return nil, fmt.Errorf("cannot use device %q: partition table is %s, not gpt", path, table.Type())
	}

	var parts []Partition
	for _, p := range gptTable.Partitions {
		if p == nil || p.Name == "" {
			continue
		}
		parts = append(parts, Partition{
			Name:        p.Name,
			StartOffset: uint64(p.GetStart()),
			Size:        uint64(p.GetSize()),
		})
	}
	return parts, nil
}

// FindPartition scans the given partition entries for an exact match of
// one of the component's resolved names for the slot.
func (g *GPT) FindPartition(parts []Partition, sl slot.Slot) (*Partition, error) {
	names := g.PartitionNames(sl)
	for _, name := range names {
		for i := range parts {
			if parts[i].Name == name {
				return &parts[i], nil
			}
		}
	}
	return nil, &PartitionNotFoundError{Device: g.Device.Path(), Names: names}
}

// Partition resolves the component to its partition entry for the given
// slot, reading the device's partition table.
func (g *GPT) Partition(sl slot.Slot) (*Partition, error) {
	parts, err := g.ReadPartitionTable()
	if err != nil {
		return nil, err
	}
	return g.FindPartition(parts, sl)
}
