/*
Copyright © 2024 the Pan3D authors.
This file is part of Pan3D.

Pan3D is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Pan3D is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Pan3D.  If not, see <http://www.gnu.org/licenses/>.
*/

package pan3d

import (
	"fmt"
	"math"
)

var sizeUnits = []string{"bytes", "KB", "MB", "GB"}

// FormatBytes formats a byte count using the largest unit whose size
// n strictly exceeds, rounding half to even.
func FormatBytes(n int64) string {
	for exp := len(sizeUnits) - 1; exp >= 0; exp-- {
		div := math.Pow(1024, float64(exp))
		if float64(n) > div {
			return fmt.Sprintf("%d %s", int64(math.RoundToEven(float64(n)/div)), sizeUnits[exp])
		}
	}
	return fmt.Sprintf("%d bytes", n)
}
