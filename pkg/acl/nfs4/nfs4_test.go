package nfs4

import (
	"context"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ownerAllow(mask uint32, flags uint32) ACE {
	return ACE{Type: AceAllow, Flags: flags, AccessMask: mask, WhoType: WhoOwner, WhoID: -1}
}

func TestCanonicalOrder(t *testing.T) {
	// explicit-allow, inherited-deny, explicit-deny, inherited-allow in;
	// explicit-deny, explicit-allow, inherited-deny, inherited-allow out.
	in := []ACE{
		{Type: AceAllow, WhoType: WhoOwner, WhoID: -1},
		{Type: AceDeny, Flags: FlagInherited, WhoType: WhoNamed, WhoID: 1000},
		{Type: AceDeny, WhoType: WhoNamed, WhoID: 1001},
		{Type: AceAllow, Flags: FlagInherited, WhoType: WhoEveryone, WhoID: -1},
	}

	acl := FromACEs(in, 0)
	require.Len(t, acl.ACEs, 4)

	assert.Equal(t, uint32(AceDeny), acl.ACEs[0].Type)
	assert.False(t, acl.ACEs[0].IsInherited())
	assert.Equal(t, uint32(AceAllow), acl.ACEs[1].Type)
	assert.False(t, acl.ACEs[1].IsInherited())
	assert.Equal(t, uint32(AceDeny), acl.ACEs[2].Type)
	assert.True(t, acl.ACEs[2].IsInherited())
	assert.Equal(t, uint32(AceAllow), acl.ACEs[3].Type)
	assert.True(t, acl.ACEs[3].IsInherited())
}

func TestCanonicalOrderIsStable(t *testing.T) {
	in := []ACE{
		{Type: AceAllow, WhoType: WhoNamed, WhoID: 1},
		{Type: AceAllow, WhoType: WhoNamed, WhoID: 2},
		{Type: AceAllow, WhoType: WhoNamed, WhoID: 3},
	}

	acl := FromACEs(in, 0)
	for i, ace := range acl.ACEs {
		assert.Equal(t, int64(i+1), ace.WhoID)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	in := FromACEs([]ACE{
		{Type: AceDeny, AccessMask: PermWriteData, WhoType: WhoNamed, WhoID: 1000},
		ownerAllow(PermReadData|PermExecute, FlagFileInherit|FlagDirectoryInherit),
		{Type: AceAllow, Flags: FlagIdentifierGroup, AccessMask: PermReadData, WhoType: WhoGroup, WhoID: -1},
	}, ACLIsDir)

	data, err := in.Encode()
	require.NoError(t, err)
	require.Len(t, data, headerSize+3*aceSize)

	out, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeWireFormat(t *testing.T) {
	acl := &ACL{
		Flags: ACLIsTrivial,
		ACEs: []ACE{
			{Type: AceAllow, Flags: FlagInherited, AccessMask: PermReadData, WhoType: WhoEveryone, WhoID: -1},
		},
	}

	data, err := acl.Encode()
	require.NoError(t, err)

	assert.Equal(t, uint32(ACLIsTrivial), binary.BigEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(data[4:8]))
	assert.Equal(t, uint32(AceAllow), binary.BigEndian.Uint32(data[8:12]))
	assert.Equal(t, uint32(FlagInherited), binary.BigEndian.Uint32(data[12:16]))
	// Special principal: iflag=1, who carries the who-type.
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(data[16:20]))
	assert.Equal(t, uint32(PermReadData), binary.BigEndian.Uint32(data[20:24]))
	assert.Equal(t, uint32(WhoEveryone), binary.BigEndian.Uint32(data[24:28]))
}

func TestEncodeNamedPrincipalWithoutIDFails(t *testing.T) {
	acl := &ACL{ACEs: []ACE{{Type: AceAllow, WhoType: WhoNamed, WhoID: -1}}}
	_, err := acl.Encode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concrete id")
}

func TestParseRejectsBadPayloads(t *testing.T) {
	t.Run("TooShort", func(t *testing.T) {
		_, err := Parse([]byte{0, 0, 0})
		assert.ErrorContains(t, err, "too short")
	})

	t.Run("Truncated", func(t *testing.T) {
		data := make([]byte, headerSize)
		binary.BigEndian.PutUint32(data[4:8], 2)
		_, err := Parse(data)
		assert.ErrorContains(t, err, "truncated")
	})

	t.Run("HugeCount", func(t *testing.T) {
		data := make([]byte, headerSize)
		binary.BigEndian.PutUint32(data[4:8], MaxACECount+1)
		_, err := Parse(data)
		assert.ErrorContains(t, err, "maximum")
	})

	t.Run("Empty", func(t *testing.T) {
		data := make([]byte, headerSize)
		acl, err := Parse(data)
		require.NoError(t, err)
		assert.Empty(t, acl.ACEs)
	})
}

func TestInheritedDirectoryChild(t *testing.T) {
	parent := &ACL{ACEs: []ACE{
		ownerAllow(PermReadData, FlagFileInherit|FlagDirectoryInherit|FlagInheritOnly),
	}}

	child, err := parent.Inherited(true)
	require.NoError(t, err)
	require.Len(t, child.ACEs, 1)

	ace := child.ACEs[0]
	assert.Equal(t, uint32(FlagFileInherit|FlagDirectoryInherit|FlagInherited), ace.Flags)
	assert.Equal(t, uint32(PermReadData), ace.AccessMask)
	assert.Equal(t, WhoOwner, ace.WhoType)
	assert.True(t, child.IsDir())
}

func TestInheritedFileChildWithNoPropagate(t *testing.T) {
	parent := &ACL{ACEs: []ACE{
		ownerAllow(PermReadData, FlagFileInherit|FlagNoPropagateInherit),
	}}

	child, err := parent.Inherited(false)
	require.NoError(t, err)
	require.Len(t, child.ACEs, 1)

	assert.Equal(t, uint32(FlagInherited), child.ACEs[0].Flags)
	assert.Zero(t, child.Flags&ACLIsDir)
}

func TestInheritedFileChildSkipsDirOnlyACEs(t *testing.T) {
	parent := &ACL{ACEs: []ACE{
		ownerAllow(PermReadData, FlagDirectoryInherit),
	}}

	_, err := parent.Inherited(false)
	assert.ErrorIs(t, err, ErrNoInheritableACEs)
}

func TestInheritedDirectoryChildWithNoPropagate(t *testing.T) {
	parent := &ACL{ACEs: []ACE{
		ownerAllow(PermReadData, FlagFileInherit|FlagDirectoryInherit|FlagNoPropagateInherit),
	}}

	child, err := parent.Inherited(true)
	require.NoError(t, err)
	require.Len(t, child.ACEs, 1)
	assert.Equal(t, uint32(FlagInherited), child.ACEs[0].Flags)
}

func TestTrivialBytes(t *testing.T) {
	assert.True(t, TrivialBytes(nil))

	trivial := &ACL{Flags: ACLIsTrivial}
	data, err := trivial.Encode()
	require.NoError(t, err)
	assert.True(t, TrivialBytes(data))

	rich := &ACL{}
	data, err = rich.Encode()
	require.NoError(t, err)
	assert.False(t, TrivialBytes(data))
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	encode := func(t *testing.T, aces ...ACE) []byte {
		t.Helper()
		data, err := (&ACL{ACEs: aces}).Encode()
		require.NoError(t, err)
		return data
	}

	t.Run("DenySpecialPrincipal", func(t *testing.T) {
		data := encode(t, ACE{Type: AceDeny, WhoType: WhoOwner, WhoID: -1})
		err := Validate(ctx, -1, data)
		assert.ErrorContains(t, err, "special principals")
	})

	t.Run("InheritOnlyWithoutInherit", func(t *testing.T) {
		data := encode(t, ownerAllow(PermReadData, FlagInheritOnly))
		err := Validate(ctx, -1, data)
		assert.ErrorContains(t, err, "INHERIT_ONLY")
	})

	t.Run("DirectoryNeedsInheritableACE", func(t *testing.T) {
		data := encode(t, ownerAllow(PermReadData, 0))
		err := Validate(ctx, -1, data)
		assert.ErrorContains(t, err, "at least one ACE")
	})

	t.Run("DirectoryACLValid", func(t *testing.T) {
		data := encode(t, ownerAllow(PermReadData, FlagFileInherit))
		assert.NoError(t, Validate(ctx, -1, data))
	})

	t.Run("PropagationOnFileFails", func(t *testing.T) {
		f, err := os.CreateTemp(t.TempDir(), "acl")
		require.NoError(t, err)
		defer f.Close()

		data := encode(t, ownerAllow(PermReadData, FlagFileInherit))
		err = Validate(ctx, int(f.Fd()), data)
		assert.ErrorContains(t, err, "only valid on directories")
	})

	t.Run("PlainFileACLValid", func(t *testing.T) {
		f, err := os.CreateTemp(t.TempDir(), "acl")
		require.NoError(t, err)
		defer f.Close()

		data := encode(t, ownerAllow(PermReadData, 0))
		assert.NoError(t, Validate(ctx, int(f.Fd()), data))
	})
}
