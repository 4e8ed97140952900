package classify

import "errors"

// validateDecision normalizes a decoded decision in place. Scores are
// clamped to [0,100] and bucket names outside the configured enumeration
// are discarded; papers left without a bucket fall through to the
// uncategorized section at assembly time.
func validateDecision(d *Decision, bucketNames []string) error {
	if d.Summary == "" {
		return errors.New("missing summary")
	}
	if d.WhyItMatters == "" {
		return errors.New("missing why_it_matters")
	}

	if d.RelevanceScore < 0 {
		d.RelevanceScore = 0
	}
	if d.RelevanceScore > 100 {
		d.RelevanceScore = 100
	}

	known := make(map[string]struct{}, len(bucketNames))
	for _, name := range bucketNames {
		known[name] = struct{}{}
	}

	var valid []string
	for _, name := range d.Buckets {
		if _, ok := known[name]; ok {
			valid = append(valid, name)
		}
	}
	d.Buckets = valid

	return nil
}
