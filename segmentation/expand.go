package segmentation

import (
	"fmt"

	"github.com/AlanRace/go-mibi/mibi"
)

// ExpandObjects grows every object into the surrounding background until no
// background pixel touches an object or the object holds maxSize pixels.
//
// Growth happens in rounds. The candidates of a round are the background
// pixels 4-adjacent to an object as it was at the start of the round, so
// objects grow one pixel ring at a time. Objects take their candidates in
// ascending id order, each claiming its candidates in row major order until
// it reaches maxSize; a pixel claimed by a lower id is no longer available,
// so the lower id wins pixels equidistant from two objects. Objects already
// larger than maxSize are left as they are.
func ExpandObjects(l *Labels, maxSize int) (*Labels, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: maximum object size must be positive, not %d", mibi.ErrValidation, maxSize)
	}

	return expand(l, maxSize, 0), nil
}

// ExpandObjectsByDistance grows every object by up to distance pixels,
// measured as 4-connected steps, using the rounds of ExpandObjects without a
// size limit.
func ExpandObjectsByDistance(l *Labels, distance int) (*Labels, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	if distance < 0 {
		return nil, fmt.Errorf("%w: negative expansion distance %d", mibi.ErrValidation, distance)
	}
	if distance == 0 {
		return l.Clone(), nil
	}

	return expand(l, 0, distance), nil
}

// expand runs growth rounds. A zero maxSize or maxRounds means no limit.
func expand(l *Labels, maxSize, maxRounds int) *Labels {
	out := l.Clone()
	areas := out.Areas()
	ids := sortedIDs(areas)

	for round := 0; maxRounds == 0 || round < maxRounds; round++ {
		// the snapshot fixes each object's boundary for this round
		snapshot := append([]uint32{}, out.Pix...)

		candidates := make(map[uint32][]int)
		for i, id := range snapshot {
			if id != 0 {
				continue
			}
			var seen [4]uint32
			n := 0
			out.neighbours(i, func(j int) {
				neighbour := snapshot[j]
				if neighbour == 0 {
					return
				}
				for _, s := range seen[:n] {
					if s == neighbour {
						return
					}
				}
				seen[n] = neighbour
				n++
				candidates[neighbour] = append(candidates[neighbour], i)
			})
		}

		claimed := 0
		for _, id := range ids {
			for _, i := range candidates[id] {
				if maxSize > 0 && areas[id] >= maxSize {
					break
				}
				if out.Pix[i] != 0 {
					continue
				}
				out.Pix[i] = id
				areas[id]++
				claimed++
			}
		}

		if claimed == 0 {
			break
		}
	}

	return out
}
