package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truenas/osfs/pkg/acl/nfs4"
	"github.com/truenas/osfs/pkg/acl/posix1e"
)

func TestNFS4ACERoundTrip(t *testing.T) {
	cases := []struct {
		name string
		text string
		ace  nfs4.ACE
	}{
		{
			name: "OwnerFull",
			text: "owner@:rwaRWxDdpPcCos:--------:allow",
			ace: nfs4.ACE{
				Type:       nfs4.AceAllow,
				AccessMask: nfs4FullSet(),
				WhoType:    nfs4.WhoOwner,
				WhoID:      -1,
			},
		},
		{
			name: "EveryoneDeny",
			text: "everyone@:-w------------:--------:deny",
			ace: nfs4.ACE{
				Type:       nfs4.AceDeny,
				AccessMask: nfs4.PermWriteData,
				WhoType:    nfs4.WhoEveryone,
				WhoID:      -1,
			},
		},
		{
			name: "NamedUserWithInheritance",
			text: "user:1000:r----x--------:fd------:allow",
			ace: nfs4.ACE{
				Type:       nfs4.AceAllow,
				Flags:      nfs4.FlagFileInherit | nfs4.FlagDirectoryInherit,
				AccessMask: nfs4.PermReadData | nfs4.PermExecute,
				WhoType:    nfs4.WhoNamed,
				WhoID:      1000,
			},
		},
		{
			name: "NamedGroupInherited",
			text: "group:1000:r-------------:------gI:allow",
			ace: nfs4.ACE{
				Type:       nfs4.AceAllow,
				Flags:      nfs4.FlagIdentifierGroup | nfs4.FlagInherited,
				AccessMask: nfs4.PermReadData,
				WhoType:    nfs4.WhoNamed,
				WhoID:      1000,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.text, formatNFS4ACE(tc.ace, true))

			back, err := parseNFS4ACE(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.ace, back)
		})
	}
}

func TestNFS4PermSets(t *testing.T) {
	full, err := parseNFS4Perms("full_set")
	require.NoError(t, err)
	assert.Equal(t, nfs4FullSet(), full)

	modify, err := parseNFS4Perms("modify_set")
	require.NoError(t, err)
	assert.Zero(t, modify&nfs4.PermWriteACL)
	assert.Zero(t, modify&nfs4.PermWriteOwner)
	assert.NotZero(t, modify&nfs4.PermWriteData)

	read, err := parseNFS4Perms("read_set")
	require.NoError(t, err)
	assert.Equal(t, uint32(nfs4.PermReadData|nfs4.PermReadNamedAttrs|
		nfs4.PermReadAttributes|nfs4.PermReadACL), read)
}

func TestNFS4ACEParseErrors(t *testing.T) {
	for _, bad := range []string{
		"owner@:rw:allow",
		"somebody@:rw------------:--------:allow",
		"owner@:rz------------:--------:allow",
		"owner@:rw------------:zz------:allow",
		"owner@:rw------------:--------:grant",
		"user:rw------------:--------:allow",
	} {
		_, err := parseNFS4ACE(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestPosixACERoundTrip(t *testing.T) {
	cases := []struct {
		name string
		text string
		ace  posix1e.ACE
	}{
		{
			name: "UserObj",
			text: "user::rw-",
			ace:  posix1e.ACE{Tag: posix1e.TagUserObj, Perms: posix1e.PermRead | posix1e.PermWrite, ID: -1},
		},
		{
			name: "NamedUser",
			text: "user:1000:r-x",
			ace:  posix1e.ACE{Tag: posix1e.TagUser, Perms: posix1e.PermRead | posix1e.PermExecute, ID: 1000},
		},
		{
			name: "Mask",
			text: "mask::r--",
			ace:  posix1e.ACE{Tag: posix1e.TagMask, Perms: posix1e.PermRead, ID: -1},
		},
		{
			name: "DefaultNamedGroup",
			text: "default:group:1000:rwx",
			ace: posix1e.ACE{
				Tag:     posix1e.TagGroup,
				Perms:   posix1e.PermRead | posix1e.PermWrite | posix1e.PermExecute,
				ID:      1000,
				Default: true,
			},
		},
		{
			name: "Other",
			text: "other::---",
			ace:  posix1e.ACE{Tag: posix1e.TagOther, ID: -1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.text, formatPosixACE(tc.ace, true))

			back, err := parsePosixACE(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.ace, back)
		})
	}
}

func TestPosixACEParseErrors(t *testing.T) {
	for _, bad := range []string{
		"user:rw-",
		"owner::rw-",
		"user::rz-",
		"default:mask:r--",
	} {
		_, err := parsePosixACE(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestSplitEntries(t *testing.T) {
	entries := splitEntries("user::rw-, group::r--\n# comment\n\nother::---")
	assert.Equal(t, []string{"user::rw-", "group::r--", "other::---"}, entries)
}

func TestTrivialPosixFromMode(t *testing.T) {
	aces := trivialPosixFromMode(0o640)
	require.Len(t, aces, 3)
	assert.Equal(t, posix1e.TagUserObj, aces[0].Tag)
	assert.Equal(t, posix1e.PermRead|posix1e.PermWrite, aces[0].Perms)
	assert.Equal(t, posix1e.TagGroupObj, aces[1].Tag)
	assert.Equal(t, posix1e.PermRead, aces[1].Perms)
	assert.Equal(t, posix1e.TagOther, aces[2].Tag)
	assert.Zero(t, aces[2].Perms)
}
