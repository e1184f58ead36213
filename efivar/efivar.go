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

// Package efivar reads and writes UEFI variables through the kernel's
// efivarfs. Variable files there carry the immutable inode flag, which
// has to be dropped for the duration of a write and restored
// afterwards; failing to restore it would leave a protected variable
// unprotected, so a failed restore is an error even when the write
// itself succeeded.
package efivar

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/embedfleet/updated/dirs"
)

// Db is a handle on an efivarfs mount point.
type Db struct {
	dir string
}

// NewDb returns the Db for the system efivarfs location under the
// current root directory.
func NewDb() *Db {
	return &Db{dir: dirs.EfiVarsDir}
}

// Dir returns the filesystem path of the efivarfs mount point.
func (db *Db) Dir() string {
	return db.dir
}

// Var returns a handle for the variable with the given file name,
// typically "Name-<vendor guid>".
func (db *Db) Var(name string) (*Var, error) {
	if filepath.IsAbs(name) {
		return nil, fmt.Errorf("cannot use absolute path %q as an EFI variable name", name)
	}
	return &Var{path: filepath.Join(db.dir, name)}, nil
}

// Var is a single UEFI variable file.
type Var struct {
	path string
}

// Path returns the variable's file path.
func (v *Var) Path() string {
	return v.path
}

// SizeError means a variable's payload did not have the mandated
// size. Payloads are fixed-length and never coerced.
type SizeError struct {
	Path     string
	Size     int
	Expected int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("EFI variable %q has size %d, expected %d", e.Path, e.Size, e.Expected)
}

// Read returns the variable's entire payload, attribute prefix
// included.
func (v *Var) Read() ([]byte, error) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadSized reads the variable and fails unless its payload has
// exactly the expected size.
func (v *Var) ReadSized(expected int) ([]byte, error) {
	data, err := v.Read()
	if err != nil {
		return nil, err
	}
	if len(data) != expected {
		return nil, &SizeError{Path: v.path, Size: len(data), Expected: expected}
	}
	return data, nil
}

// Write replaces the variable's payload, temporarily dropping the
// immutable flag of an existing variable file and restoring it before
// returning. A restore failure is reported as an error even if the
// payload was written. A variable that does not exist yet is created.
func (v *Var) Write(data []byte) (err error) {
	ctl, err := os.Open(v.path)
	if os.IsNotExist(err) {
		return v.create(data)
	}
	if err != nil {
		return fmt.Errorf("cannot open EFI variable %q: %v", v.path, err)
	}
	defer ctl.Close()

	attrs, err := getFileAttrs(ctl)
	if err != nil {
		return fmt.Errorf("cannot read attributes of %q: %v", v.path, err)
	}
	if err := setFileAttrs(ctl, attrs&^ImmutableFlag); err != nil {
		return fmt.Errorf("cannot make %q mutable: %v", v.path, err)
	}
	defer func() {
		if rerr := setFileAttrs(ctl, attrs); rerr != nil && err == nil {
			err = fmt.Errorf("cannot restore attributes of %q: %v", v.path, rerr)
		}
	}()

	w, err := os.OpenFile(v.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open EFI variable %q for writing: %v", v.path, err)
	}
	defer w.Close()
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("cannot write EFI variable %q: %v", v.path, err)
	}
	return nil
}

func (v *Var) create(data []byte) error {
	f, err := os.OpenFile(v.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("cannot create EFI variable %q: %v", v.path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("cannot write EFI variable %q: %v", v.path, err)
	}
	return nil
}

// Remove deletes the variable file, dropping the immutable flag first
// if needed.
func (v *Var) Remove() error {
	ctl, err := os.Open(v.path)
	if err != nil {
		return fmt.Errorf("cannot open EFI variable %q: %v", v.path, err)
	}
	attrs, err := getFileAttrs(ctl)
	if err == nil && attrs&ImmutableFlag != 0 {
		err = setFileAttrs(ctl, attrs&^ImmutableFlag)
	}
	ctl.Close()
	if err != nil {
		return fmt.Errorf("cannot make %q mutable: %v", v.path, err)
	}
	if err := os.Remove(v.path); err != nil {
		return fmt.Errorf("cannot remove EFI variable %q: %v", v.path, err)
	}
	return nil
}
