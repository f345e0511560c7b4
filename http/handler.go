package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/rtree"
	"github.com/segmentio/encoding/json"
)

func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func HandleReadyCheck(readinessCheck func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !readinessCheck() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(version))
	}
}

// IndexInfo describes a live index.
type IndexInfo struct {
	ID           string      `json:"id"`
	UUID         string      `json:"uuid"`
	Participants int         `json:"participants"`
	Stats        rtree.Stats `json:"stats"`
}

// HandleIndexList writes the live indexes of the store as JSON.
func HandleIndexList(indexes *models.IndexStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		list := indexes.List()
		infos := make([]IndexInfo, len(list))
		for i, index := range list {
			infos[i] = IndexInfo{
				ID:           indexes.GlobalIndexID(index.ID),
				UUID:         index.UUID,
				Participants: index.ParticipantCount(),
				Stats:        index.Stats(),
			}
		}

		data, err := json.Marshal(infos)
		if err != nil {
			logs.Error(errors.New("encoding index list failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
