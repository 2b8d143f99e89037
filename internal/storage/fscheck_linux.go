//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// f_type values from statfs(2) that matter for a label spool: the shares a
// drop folder usually lives on, and the local filesystems worth naming in
// doctor output.
var linuxMountTypes = map[uint64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
	0xEF53:     "ext4",
	0x58465342: "xfs",
	0x9123683E: "btrfs",
	0x01021994: "tmpfs",
	0x794C7630: "overlay",
}

// mountType names the filesystem holding path. Unlisted magics come back as
// hex so doctor can still print them.
func mountType(path string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	magic := uint64(st.Type)
	if name, ok := linuxMountTypes[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
