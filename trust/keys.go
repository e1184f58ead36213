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

package trust

// The embedded key-exchange documents for the two signing environments.
// Each document is pinned against a hard-coded SHA-256 digest of its
// exact bytes; any modification of the embedded material makes key
// initialization fail hard.

const (
	productionKeyDoc    = `{"keys":[{"crv":"Ed25519","kid":"production-1","kty":"OKP","x":"AWSVfv8Z1_5gbvwlBnIaXggMvBenXURK538n1Gut8lA"}]}`
	productionKeyDigest = "7114c936a4e5cedd81fd19144b36ef03507c423d5320d017d125da5490c0f52f"

	stagingKeyDoc    = `{"keys":[{"crv":"Ed25519","kid":"staging-1","kty":"OKP","x":"AjSTmaR0aG5HWUNL3OJLDIbQrYq-1hGctAK8xHuXMpU"}]}`
	stagingKeyDigest = "d739b012835c86d998ad765b19de7a1e91dab2b2c000ec8175f70a60fc1ea8e1"
)
