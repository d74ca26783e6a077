package catalog

import "fmt"

// CloudKeys are the scene properties summed into the cloud-occlusion score.
var CloudKeys = []string{
	"s2:thin_cirrus_percentage",
	"s2:high_proba_clouds_percentage",
	"s2:medium_proba_clouds_percentage",
	"s2:cloud_shadow_percentage",
}

// CloudScore sums the cloud-occlusion percentages of a record.
func CloudScore(rec *SceneRecord) (float64, error) {
	var score float64
	for _, key := range CloudKeys {
		v, ok := rec.Number(key)
		if !ok {
			return 0, fmt.Errorf("%w: scene %s has no numeric %s", ErrMalformedScene, rec.ID, key)
		}
		score += v
	}
	return score, nil
}

// SelectBest returns the record with the lowest cloud-occlusion score.
// Ties go to the record that appears first.
func SelectBest(records []*SceneRecord) (*SceneRecord, error) {
	if len(records) == 0 {
		return nil, ErrNoCandidate
	}

	var best *SceneRecord
	var bestScore float64
	for _, rec := range records {
		score, err := CloudScore(rec)
		if err != nil {
			return nil, err
		}
		if best == nil || score < bestScore {
			best = rec
			bestScore = score
		}
	}
	return best, nil
}
