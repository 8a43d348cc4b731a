package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/transcaribe/tracking_core/internal/models"
)

func sampleAt(userID int64, lat, lon float64) models.LocationSample {
	return models.LocationSample{
		UserID:    userID,
		Location:  models.Point{Lat: lat, Lon: lon},
		Timestamp: time.Now().UTC(),
	}
}

func TestQueueKeepsLatestPerRider(t *testing.T) {
	q := NewQueue()
	q.Push(sampleAt(1, 10.40, -75.50))
	q.Push(sampleAt(1, 10.41, -75.51))
	q.Push(sampleAt(2, 10.42, -75.52))

	assert.Equal(t, 2, q.Len())

	samples := q.DrainLatest()
	assert.Len(t, samples, 2)
	assert.Equal(t, int64(1), samples[0].UserID)
	assert.Equal(t, 10.41, samples[0].Location.Lat)
	assert.Equal(t, int64(2), samples[1].UserID)
}

func TestQueueDrainAscendingOrder(t *testing.T) {
	q := NewQueue()
	q.Push(sampleAt(30, 10.4, -75.5))
	q.Push(sampleAt(7, 10.4, -75.5))
	q.Push(sampleAt(19, 10.4, -75.5))

	samples := q.DrainLatest()
	var ids []int64
	for _, s := range samples {
		ids = append(ids, s.UserID)
	}
	assert.Equal(t, []int64{7, 19, 30}, ids)
}

func TestQueueDrainEmpties(t *testing.T) {
	q := NewQueue()
	q.Push(sampleAt(1, 10.4, -75.5))

	assert.Len(t, q.DrainLatest(), 1)
	assert.Empty(t, q.DrainLatest())
	assert.Equal(t, 0, q.Len())
}
