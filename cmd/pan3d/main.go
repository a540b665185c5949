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

// Command pan3d serves a web browser interface for exploring
// N-dimensional datasets.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/pan3d/pan3dutil"
)

func main() {
	if err := pan3dutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
