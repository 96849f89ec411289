package intelligence

// recommendationInputs names the fixed set of conditions spec.md §4.11's
// recommendation rule table keys on.
type recommendationInputs struct {
	lowCredibility        bool
	hashDuplicates        bool
	deviceInconsistencies bool
	timestampIssues       bool
	isolatedGPS           bool
	brightnessOutliers    bool
	fewerThanThreeImages  bool
	zeroOSINTFindings     bool
}

// recommendations walks the rule table in a fixed order; every matching
// condition contributes its message, and order is preserved exactly as
// listed so output is deterministic across runs.
func recommendations(in recommendationInputs) []string {
	var out []string
	if in.lowCredibility {
		out = append(out, "metadata credibility is low; corroborate source authenticity before relying on this batch")
	}
	if in.hashDuplicates {
		out = append(out, "duplicate file hashes detected; review for resubmission or tampering")
	}
	if in.deviceInconsistencies {
		out = append(out, "multiple distinct camera models observed; confirm all images originate from the claimed source")
	}
	if in.timestampIssues {
		out = append(out, "timestamp sequence is inconsistent; verify capture chronology")
	}
	if in.isolatedGPS {
		out = append(out, "GPS data is sparse or widely separated; location claims are unreliable")
	}
	if in.brightnessOutliers {
		out = append(out, "brightness outliers detected; inspect for lighting manipulation or compositing")
	}
	if in.fewerThanThreeImages {
		out = append(out, "fewer than three images were supplied; confidence estimates are statistically weak")
	}
	if in.zeroOSINTFindings {
		out = append(out, "no OSINT anomalies were raised; this alone does not confirm authenticity")
	}
	return out
}
