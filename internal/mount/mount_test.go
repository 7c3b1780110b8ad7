package mount

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/openmined/mountsync/internal/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	credErr   error
	accessErr error
	calls     []string
}

func (f *fakeStore) CheckCredentials(ctx context.Context) error {
	f.calls = append(f.calls, "credentials")
	return f.credErr
}

func (f *fakeStore) CheckAccess(ctx context.Context) error {
	f.calls = append(f.calls, "access")
	return f.accessErr
}

type fakeTable struct {
	mounts map[string]*MountInfo
	err    error
}

func (f *fakeTable) Lookup(ctx context.Context, path string) (*MountInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mounts[path], nil
}

type fakeRemounter struct {
	table *fakeTable
	info  *MountInfo
	err   error
	calls int
}

func (f *fakeRemounter) Remount(ctx context.Context, path string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.table.mounts[path] = f.info
	return nil
}

func nfs(path string) *MountInfo {
	return &MountInfo{Device: "fs-1234.efs.us-east-1.amazonaws.com:/", Mountpoint: path, Fstype: "nfs4"}
}

func TestCheckReady_Success(t *testing.T) {
	mnt := t.TempDir()
	sub := filepath.Join(mnt, "incoming", "daily")
	store := &fakeStore{}

	c := NewChecker(&Config{
		MountPath: mnt,
		Store:     store,
		Table:     &fakeTable{mounts: map[string]*MountInfo{mnt: nfs(mnt)}},
		Subdirs:   []string{sub},
	})

	require.NoError(t, c.CheckReady(context.Background()))
	assert.DirExists(t, sub)
	assert.Equal(t, []string{"credentials", "access"}, store.calls)

	// second run is idempotent
	require.NoError(t, c.CheckReady(context.Background()))
}

func TestCheckReady_Failures(t *testing.T) {
	mnt := t.TempDir()
	mounted := &fakeTable{mounts: map[string]*MountInfo{mnt: nfs(mnt)}}

	cases := []struct {
		name  string
		cfg   *Config
		want  error
		calls []string
	}{
		{
			name:  "credentials",
			cfg:   &Config{MountPath: mnt, Store: &fakeStore{credErr: errors.New("no creds")}, Table: mounted},
			want:  ErrCredential,
			calls: []string{"credentials"},
		},
		{
			name:  "store unreachable",
			cfg:   &Config{MountPath: mnt, Store: &fakeStore{accessErr: errors.New("timeout")}, Table: mounted},
			want:  ErrStoreUnreachable,
			calls: []string{"credentials", "access"},
		},
		{
			name: "credentials rejected by the store",
			cfg: &Config{MountPath: mnt, Table: mounted, Store: &fakeStore{
				accessErr: &blob.Error{Op: "list", Bucket: "bucket", Err: fmt.Errorf("%w: InvalidAccessKeyId", blob.ErrCredentials)},
			}},
			want:  ErrCredential,
			calls: []string{"credentials", "access"},
		},
		{
			name:  "plain directory",
			cfg:   &Config{MountPath: mnt, Store: &fakeStore{}, Table: &fakeTable{mounts: map[string]*MountInfo{}}},
			want:  ErrNotMounted,
			calls: []string{"credentials", "access"},
		},
		{
			name: "local filesystem",
			cfg: &Config{MountPath: mnt, Store: &fakeStore{}, Table: &fakeTable{mounts: map[string]*MountInfo{
				mnt: {Device: "/dev/sda1", Mountpoint: mnt, Fstype: "ext4"},
			}}},
			want:  ErrNotMounted,
			calls: []string{"credentials", "access"},
		},
		{
			name:  "missing path",
			cfg:   &Config{MountPath: filepath.Join(mnt, "absent"), Store: &fakeStore{}, Table: mounted},
			want:  ErrNotMounted,
			calls: []string{"credentials", "access"},
		},
		{
			name:  "mount table error",
			cfg:   &Config{MountPath: mnt, Store: &fakeStore{}, Table: &fakeTable{err: errors.New("proc unavailable")}},
			want:  ErrNotMounted,
			calls: []string{"credentials", "access"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewChecker(tc.cfg).CheckReady(context.Background())
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.calls, tc.cfg.Store.(*fakeStore).calls)
		})
	}
}

func TestCheckReady_AnyFstype(t *testing.T) {
	mnt := t.TempDir()
	c := NewChecker(&Config{
		MountPath: mnt,
		Store:     &fakeStore{},
		Table:     &fakeTable{mounts: map[string]*MountInfo{mnt: {Mountpoint: mnt, Fstype: "tmpfs"}}},
		AnyFstype: true,
	})
	assert.NoError(t, c.CheckReady(context.Background()))
}

func TestCheckReady_RemountOnce(t *testing.T) {
	mnt := t.TempDir()

	t.Run("recovers", func(t *testing.T) {
		table := &fakeTable{mounts: map[string]*MountInfo{}}
		rm := &fakeRemounter{table: table, info: nfs(mnt)}
		c := NewChecker(&Config{MountPath: mnt, Store: &fakeStore{}, Table: table, Remounter: rm})

		require.NoError(t, c.CheckReady(context.Background()))
		assert.Equal(t, 1, rm.calls)
	})

	t.Run("gives up", func(t *testing.T) {
		table := &fakeTable{mounts: map[string]*MountInfo{}}
		rm := &fakeRemounter{table: table, err: errors.New("mount: permission denied")}
		c := NewChecker(&Config{MountPath: mnt, Store: &fakeStore{}, Table: table, Remounter: rm})

		assert.ErrorIs(t, c.CheckReady(context.Background()), ErrNotMounted)
		assert.Equal(t, 1, rm.calls)
	})
}

func TestMounted_DoesNotTouchStore(t *testing.T) {
	store := &fakeStore{}
	c := NewChecker(&Config{MountPath: "/definitely/not/here", Store: store, Table: &fakeTable{}})

	ok, reason := c.Mounted(context.Background())
	assert.False(t, ok)
	assert.Contains(t, reason, "does not exist")
	assert.Empty(t, store.calls)
}

func TestIsNetworkFstype(t *testing.T) {
	assert.True(t, IsNetworkFstype("nfs4"))
	assert.True(t, IsNetworkFstype("fuse.s3fs"))
	assert.False(t, IsNetworkFstype("ext4"))
	assert.False(t, IsNetworkFstype("tmpfs"))
}

func TestUsage_TempDir(t *testing.T) {
	u, err := Usage(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, u.Total, uint64(0))
}
