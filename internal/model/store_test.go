package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func testService(n int) Service {
	return Service{
		FavID:           fmt.Sprintf("%x:1:2:eeee0000", n),
		RefID:           fmt.Sprintf("1:0:1:%X:1:2:EEEE0000:0:0:0:", n),
		Name:            fmt.Sprintf("Channel %d", n),
		Type:            TypeTV,
		Package:         "Test",
		Pos:             "13.0E",
		TransponderType: "s",
	}
}

func loadedStore(t *testing.T, n int) *Store {
	t.Helper()
	st := NewStore()
	services := make([]Service, 0, n)
	refs := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s := testService(i)
		services = append(services, s)
		refs = append(refs, s.FavID)
	}
	groups := []*BouquetGroup{{
		Name: "Bouquets (TV)",
		Type: BouquetTV,
		Bouquets: []*Bouquet{
			{Name: "Favourites", Type: BouquetTV, File: "dbe01", Services: refs},
		},
	}}
	require.NoError(t, st.Load(services, groups, nil))
	return st
}

func TestLoadDerivesLockedFromBlacklist(t *testing.T) {
	st := NewStore()
	s1, s2 := testService(1), testService(2)
	err := st.Load([]Service{s1, s2}, nil, []string{s2.RefID})
	require.NoError(t, err)

	got, _ := st.Service(s2.FavID)
	if !got.Locked {
		t.Errorf("service %s should be locked via blacklist", s2.FavID)
	}
	got, _ = st.Service(s1.FavID)
	if got.Locked {
		t.Errorf("service %s should not be locked", s1.FavID)
	}
}

func TestLoadRejectsDuplicateFavID(t *testing.T) {
	st := NewStore()
	s := testService(1)
	err := st.Load([]Service{s, s}, nil, nil)
	require.ErrorIs(t, err, ErrConflict)
}

func TestRemoveServiceCascades(t *testing.T) {
	st := loadedStore(t, 3)
	s2 := testService(2)

	alt, err := st.AddAlternatives("Favourites:tv", testService(1).FavID)
	require.NoError(t, err)
	require.NoError(t, st.AppendAlternative(alt.FavID, s2.FavID))

	require.NoError(t, st.RemoveService(s2.FavID))

	b, _ := st.Bouquet("Favourites:tv")
	for _, id := range b.Services {
		if id == s2.FavID {
			t.Fatalf("bouquet still references deleted service")
		}
	}
	got, _ := st.Service(alt.FavID)
	for _, id := range got.AltRefs {
		if id == s2.FavID {
			t.Fatalf("alternative still references deleted service")
		}
	}
	require.NoError(t, st.ValidateAlternatives())
}

func TestDeleteAllLeavesBouquetEmptyButPresent(t *testing.T) {
	st := loadedStore(t, 3)
	for i := 1; i <= 3; i++ {
		require.NoError(t, st.RemoveService(testService(i).FavID))
	}
	b, ok := st.Bouquet("Favourites:tv")
	require.True(t, ok, "bouquet must survive emptying")
	require.Empty(t, b.Services)
}

func TestUpdateServiceRewritesReferencesOnKeyChange(t *testing.T) {
	st := loadedStore(t, 2)
	s1 := testService(1)
	moved := s1
	moved.FavID = "aa:1:2:eeee0000"
	moved.Name = "Renamed"

	require.NoError(t, st.UpdateService(s1.FavID, moved))

	_, ok := st.Service(s1.FavID)
	require.False(t, ok)
	b, _ := st.Bouquet("Favourites:tv")
	require.Equal(t, moved.FavID, b.Services[0])
}

func TestToggleLockSyncsBlacklist(t *testing.T) {
	st := loadedStore(t, 2)
	s2 := testService(2)

	require.NoError(t, st.ToggleLock(s2.FavID))
	require.Equal(t, []string{s2.RefID}, st.Blacklist())
	got, _ := st.Service(s2.FavID)
	require.True(t, got.Locked)
	require.True(t, HasFlag(got.FlagsCas, FlagLocked))

	require.NoError(t, st.ToggleLock(s2.FavID))
	require.Empty(t, st.Blacklist())
	got, _ = st.Service(s2.FavID)
	require.False(t, HasFlag(got.FlagsCas, FlagLocked))
}

func TestToggleHideKeepsOtherFlags(t *testing.T) {
	st := loadedStore(t, 1)
	s := testService(1)
	s.FlagsCas = "p:Test,f:1"
	require.NoError(t, st.UpdateService(s.FavID, s))

	require.NoError(t, st.ToggleHide(s.FavID))
	got, _ := st.Service(s.FavID)
	require.Equal(t, "p:Test,f:3", got.FlagsCas)
	require.True(t, IsNew(got), "new flag must survive hide toggle")
}

func TestExtraNameClearedWhenCanonical(t *testing.T) {
	st := loadedStore(t, 1)
	s := testService(1)

	st.SetExtraName("Favourites:tv", s.FavID, "My Name")
	if _, ok := st.ExtraName("Favourites:tv", s.FavID); !ok {
		t.Fatal("override not stored")
	}
	// Setting the canonical name clears the override.
	st.SetExtraName("Favourites:tv", s.FavID, s.Name)
	if _, ok := st.ExtraName("Favourites:tv", s.FavID); ok {
		t.Fatal("override not cleared by canonical name")
	}
	// An empty entry clears as well.
	st.SetExtraName("Favourites:tv", s.FavID, "x")
	st.SetExtraName("Favourites:tv", s.FavID, "")
	if _, ok := st.ExtraName("Favourites:tv", s.FavID); ok {
		t.Fatal("override not cleared by empty name")
	}
}

func TestRenameBouquetMigratesExtras(t *testing.T) {
	st := loadedStore(t, 1)
	s := testService(1)
	st.SetExtraName("Favourites:tv", s.FavID, "Override")

	require.NoError(t, st.RenameBouquet("Favourites:tv", "Main"))
	name, ok := st.ExtraName("Main:tv", s.FavID)
	require.True(t, ok)
	require.Equal(t, "Override", name)
}

func TestRenameBouquetConflict(t *testing.T) {
	st := loadedStore(t, 1)
	require.NoError(t, st.AddBouquet(&Bouquet{Name: "Sports", Type: BouquetTV}))
	err := st.RenameBouquet("Favourites:tv", "Sports")
	require.ErrorIs(t, err, ErrConflict)
}

func TestMoveWithinBouquet(t *testing.T) {
	st := loadedStore(t, 3)
	require.NoError(t, st.MoveWithinBouquet("Favourites:tv", 0, 2))
	b, _ := st.Bouquet("Favourites:tv")
	want := []string{testService(2).FavID, testService(3).FavID, testService(1).FavID}
	require.Equal(t, want, b.Services)
}

func TestHashStableAndDirty(t *testing.T) {
	st := loadedStore(t, 3)
	h := st.CurrentHash()
	if h != st.CurrentHash() {
		t.Fatal("hash not stable across calls")
	}
	if st.Dirty() {
		t.Fatal("freshly loaded store must not be dirty")
	}
	require.NoError(t, st.ToggleLock(testService(1).FavID))
	if !st.Dirty() {
		t.Fatal("mutation must change the hash")
	}
	if st.CurrentHash() == h {
		t.Fatal("hash unchanged after mutation")
	}
	st.CommitHash()
	if st.Dirty() {
		t.Fatal("commit must clear dirty state")
	}
}

func TestPiconAssignRoundTrip(t *testing.T) {
	st := loadedStore(t, 1)
	fav := testService(1).FavID
	before, _ := st.Service(fav)

	require.NoError(t, st.AssignPicon(fav, "1_0_1_1_1_2_EEEE0000_0_0_0.png"))
	require.NoError(t, st.RemovePicon(fav))
	after, _ := st.Service(fav)
	require.Equal(t, before, after)
}
