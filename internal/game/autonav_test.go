package game

import (
	"testing"

	"github.com/resonara/server/internal/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridRooms(w, h int) []*persist.Room {
	var rooms []*persist.Room
	id := int64(1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rooms = append(rooms, &persist.Room{ID: id, MapID: 1, X: x, Y: y})
			id++
		}
	}
	return rooms
}

func TestFindRouteSameRoom(t *testing.T) {
	rooms := gridRooms(3, 3)
	route := FindRoute(rooms, 5, 5)
	require.NotNil(t, route)
	assert.Empty(t, route)
}

func TestFindRouteDiagonalShortcut(t *testing.T) {
	rooms := gridRooms(3, 3)
	// (0,0) to (2,2) takes two SE hops on an 8-way grid.
	route := FindRoute(rooms, 1, 9)
	require.Len(t, route, 2)
	assert.Equal(t, SouthEast, route[0].Direction)
	assert.Equal(t, int64(5), route[0].RoomID)
	assert.Equal(t, SouthEast, route[1].Direction)
	assert.Equal(t, int64(9), route[1].RoomID)
}

func TestFindRouteStraightLine(t *testing.T) {
	rooms := gridRooms(4, 1)
	route := FindRoute(rooms, 1, 4)
	require.Len(t, route, 3)
	for _, step := range route {
		assert.Equal(t, East, step.Direction)
	}
	assert.Equal(t, int64(4), route[2].RoomID)
}

func TestFindRouteUnreachable(t *testing.T) {
	rooms := []*persist.Room{
		{ID: 1, MapID: 1, X: 0, Y: 0},
		{ID: 2, MapID: 1, X: 5, Y: 5}, // isolated tile
	}
	assert.Nil(t, FindRoute(rooms, 1, 2))
}

func TestFindRouteDeterministic(t *testing.T) {
	rooms := gridRooms(5, 5)
	first := FindRoute(rooms, 1, 25)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, FindRoute(rooms, 1, 25))
	}
}

func TestFindRouteMissingEndpoints(t *testing.T) {
	rooms := gridRooms(2, 2)
	assert.Nil(t, FindRoute(rooms, 99, 1))
	assert.Nil(t, FindRoute(rooms, 1, 99))
}
