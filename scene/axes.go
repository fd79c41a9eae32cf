package scene

import "github.com/go-gl/mathgl/mgl32"

const (
	axisLength = 0.05

	// AxisVerticesPerController is three axis lines plus the pointer ray.
	AxisVerticesPerController = 8
)

var pointerColor = mgl32.Vec3{0.92, 0.92, 0.71}

// AxisVertex is a line-list vertex with a flat color.
type AxisVertex struct {
	Position mgl32.Vec3
	Color    mgl32.Vec3
}

// ControllerAxes appends, for each controller pose, short red/green/blue
// lines along its local X/Y/Z axes and a long ray out of its -Z axis.
func ControllerAxes(vertices []AxisVertex, poses []mgl32.Mat4) []AxisVertex {
	for _, pose := range poses {
		center := pose.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()

		for axis := 0; axis < 3; axis++ {
			var color mgl32.Vec3
			color[axis] = 1

			point := mgl32.Vec4{0, 0, 0, 1}
			point[axis] += axisLength

			vertices = append(vertices,
				AxisVertex{Position: center, Color: color},
				AxisVertex{Position: pose.Mul4x1(point).Vec3(), Color: color},
			)
		}

		start := pose.Mul4x1(mgl32.Vec4{0, 0, -0.02, 1}).Vec3()
		end := pose.Mul4x1(mgl32.Vec4{0, 0, -39, 1}).Vec3()
		vertices = append(vertices,
			AxisVertex{Position: start, Color: pointerColor},
			AxisVertex{Position: end, Color: pointerColor},
		)
	}
	return vertices
}
