package tournament

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entrant(name string) Entrant {
	return Entrant{UserID: uuid.New(), Name: name}
}

// fullTournament creates and fills a tournament of size n.
func fullTournament(t *testing.T, s *Store, gt models.GameType, n int) (*Tournament, Entrant) {
	t.Helper()
	creator := entrant("p00")
	tour, created, err := s.Create(creator, "", gt, n)
	require.NoError(t, err)
	require.True(t, created)
	for i := 1; i < n; i++ {
		require.NoError(t, tour.Join(entrant(fmt.Sprintf("p%02d", i))))
	}
	return tour, creator
}

func TestCreateIsIdempotentPerCreator(t *testing.T) {
	s := NewStore()
	creator := entrant("alice")

	first, created, err := s.Create(creator, "cup", models.GameMorris, 4)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []Entrant{creator}, first.Snapshot().Entrants)

	again, created, err := s.Create(creator, "cup", models.GameMorris, 4)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	other, created, err := s.Create(creator, "cup", models.GameMorris, 8)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestConcurrentCreatesMakeOneTournament(t *testing.T) {
	s := NewStore()
	creator := entrant("alice")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = make(map[uuid.UUID]bool)
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tour, ok, err := s.Create(creator, "cup", models.GameNaval, 8)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				created++
			}
			ids[tour.ID] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	assert.Len(t, s.List(), 1)
}

func TestCreateValidates(t *testing.T) {
	s := NewStore()
	_, _, err := s.Create(entrant("a"), "", models.GameNaval, 6)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, _, err = s.Create(entrant("a"), "", "chess", 4)
	assert.ErrorIs(t, err, ErrInvalidGameType)
	_, _, err = s.Create(entrant("a"), "", models.GameMixed, 4)
	assert.NoError(t, err)
}

func TestJoinLeaveRules(t *testing.T) {
	s := NewStore()
	creator := entrant("alice")
	tour, _, err := s.Create(creator, "", models.GameMemory, 4)
	require.NoError(t, err)

	bob := entrant("bob")
	require.NoError(t, tour.Join(bob))
	require.NoError(t, tour.Join(bob), "joining twice is a no-op")
	assert.ErrorIs(t, tour.Join(entrant("bob")), ErrNameTaken)
	require.NoError(t, tour.Join(entrant("carol")))
	require.NoError(t, tour.Join(entrant("dave")))
	assert.ErrorIs(t, tour.Join(entrant("erin")), ErrTournamentFull)

	cancelled, err := tour.Leave(bob.UserID)
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Len(t, tour.Snapshot().Entrants, 3)

	cancelled, err = tour.Leave(uuid.New())
	require.NoError(t, err)
	assert.False(t, cancelled)

	cancelled, err = tour.Leave(creator.UserID)
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.True(t, tour.Aborted)
	assert.Equal(t, models.StatusFinished, tour.Status)
}

func TestStartRules(t *testing.T) {
	s := NewStore()
	creator := entrant("alice")
	tour, _, err := s.Create(creator, "", models.GameMorris, 4)
	require.NoError(t, err)

	_, err = tour.Start(creator.UserID)
	assert.ErrorIs(t, err, ErrNotEnoughEntrants)

	for _, n := range []string{"bob", "carol", "dave"} {
		require.NoError(t, tour.Join(entrant(n)))
	}
	_, err = tour.Start(uuid.New())
	assert.ErrorIs(t, err, ErrNotCreator)

	matches, err := tour.Start(creator.UserID)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "alice", matches[0].SideA)
	assert.Equal(t, "bob", matches[0].SideB)
	assert.Equal(t, models.GameMorris, matches[0].GameType)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, tour.StartedWith)

	again, err := tour.Start(creator.UserID)
	require.NoError(t, err)
	assert.Nil(t, again)

	assert.ErrorIs(t, tour.Join(entrant("late")), ErrTournamentStarted)
	_, err = tour.Leave(creator.UserID)
	assert.ErrorIs(t, err, ErrTournamentStarted)
}

func TestMixedTournamentPicksConcreteTypes(t *testing.T) {
	tour, creator := fullTournament(t, NewStore(), models.GameMixed, 16)
	matches, err := tour.Start(creator.UserID)
	require.NoError(t, err)
	for _, m := range matches {
		assert.True(t, m.GameType.Playable(), "match %d got %q", m.Index, m.GameType)
	}
}

func TestAdvanceThroughFinal(t *testing.T) {
	tour, creator := fullTournament(t, NewStore(), models.GameNaval, 8)
	round, err := tour.Start(creator.UserID)
	require.NoError(t, err)

	for r := 0; len(round) > 0; r++ {
		var adv Advance
		for i, m := range round {
			adv, err = tour.RecordMatchResult(m.ID, m.SideA)
			require.NoError(t, err)
			if i < len(round)-1 {
				assert.False(t, adv.RoundComplete)
			}
		}
		assert.True(t, adv.RoundComplete)
		assert.Equal(t, r, adv.Round)
		if adv.Finished {
			assert.Equal(t, "p00", adv.Winner)
			break
		}
		assert.Equal(t, r+1, tour.CurrentRound)
		round = adv.Ready
		require.Len(t, round, len(tour.Bracket.Rounds[r+1]))
	}

	assert.Equal(t, models.StatusFinished, tour.Status)
	assert.Equal(t, "p00", tour.Winner)
	assert.False(t, tour.Aborted)
}

func TestRepeatedResultDoesNotReadvance(t *testing.T) {
	tour, creator := fullTournament(t, NewStore(), models.GameMemory, 4)
	round, err := tour.Start(creator.UserID)
	require.NoError(t, err)

	_, err = tour.RecordMatchResult(round[0].ID, round[0].SideB)
	require.NoError(t, err)
	adv, err := tour.RecordMatchResult(round[1].ID, round[1].SideA)
	require.NoError(t, err)
	require.True(t, adv.RoundComplete)
	require.Len(t, adv.Ready, 1)

	again, err := tour.RecordMatchResult(round[1].ID, round[1].SideA)
	require.NoError(t, err)
	assert.False(t, again.RoundComplete)
	assert.Equal(t, 1, tour.CurrentRound)
}

func TestConcurrentResultsAdvanceOnce(t *testing.T) {
	tour, creator := fullTournament(t, NewStore(), models.GameMorris, 16)
	round, err := tour.Start(creator.UserID)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completes int
	)
	for _, m := range round {
		for k := 0; k < 2; k++ {
			wg.Add(1)
			go func(m *Match) {
				defer wg.Done()
				adv, err := tour.RecordMatchResult(m.ID, m.SideA)
				assert.NoError(t, err)
				if adv.RoundComplete {
					mu.Lock()
					completes++
					mu.Unlock()
				}
			}(m)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, completes)
	assert.Equal(t, 1, tour.CurrentRound)
}

func TestCorruptionAbortsOnlyThatTournament(t *testing.T) {
	s := NewStore()
	tour, creator := fullTournament(t, s, models.GameMorris, 4)
	round, err := tour.Start(creator.UserID)
	require.NoError(t, err)

	healthy, healthyCreator := fullTournament(t, s, models.GameMemory, 4)
	_, err = healthy.Start(healthyCreator.UserID)
	require.NoError(t, err)

	_, err = tour.RecordMatchResult(round[0].ID, "nobody")
	assert.ErrorIs(t, err, ErrBracketCorrupt)
	assert.True(t, tour.Aborted)
	assert.Equal(t, models.StatusFinished, tour.Status)
	assert.NotEmpty(t, tour.AbortReason)

	_, err = tour.RecordMatchResult(round[1].ID, round[1].SideA)
	assert.ErrorIs(t, err, ErrTournamentOver)

	assert.False(t, healthy.Aborted)
	assert.Equal(t, models.StatusInProgress, healthy.Status)

	_, err = healthy.RecordMatchResult(uuid.New(), "p00")
	assert.ErrorIs(t, err, ErrBracketCorrupt)
	assert.True(t, healthy.Aborted)
}

func TestSnapshotAndSweep(t *testing.T) {
	s := NewStore()
	tour, creator := fullTournament(t, s, models.GameMorris, 4)
	round, err := tour.Start(creator.UserID)
	require.NoError(t, err)
	tour.AttachRoom(round[0].ID, 123456)

	v := tour.Snapshot()
	assert.Equal(t, models.StatusInProgress, v.Status)
	require.Len(t, v.Rounds, 2)
	assert.Equal(t, int64(123456), v.Rounds[0][0].RoomID)
	assert.Len(t, s.List(), 1)

	assert.Zero(t, s.Sweep(time.Now()), "running tournaments are kept")

	_, err = tour.RecordMatchResult(round[0].ID, "nobody")
	require.ErrorIs(t, err, ErrBracketCorrupt)
	assert.Zero(t, s.Sweep(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, s.Sweep(time.Now().Add(time.Second)))
	_, ok := s.Get(tour.ID)
	assert.False(t, ok)
}

func TestEntrantByName(t *testing.T) {
	tour, creator := fullTournament(t, NewStore(), models.GameMorris, 4)
	e, ok := tour.EntrantByName("p00")
	require.True(t, ok)
	assert.Equal(t, creator.UserID, e.UserID)
	_, ok = tour.EntrantByName("nobody")
	assert.False(t, ok)
}
