// SPDX-License-Identifier: MPL-2.0

// Command mcwrap builds Minecraft addon and map projects out of installed
// Python packages: it resolves each project's dependencies, merges their
// packs into one target tree and keeps that tree in sync while you edit.
package main

func main() {
	Execute()
}
