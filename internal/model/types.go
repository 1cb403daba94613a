package model

// Labels is the class order baked into the artifact at training time.
// Index i of the model output corresponds to Labels[i].
var Labels = [...]string{
	"MildDemented",
	"ModerateDemented",
	"NonDemented",
	"VeryMildDemented",
}

// NumClasses is the length of the output vector the artifact must produce.
const NumClasses = len(Labels)

// Input geometry of the artifact: one 224x224 RGB image in NHWC order.
const (
	ImageSize = 224
	Channels  = 3
)

// InputShape is the tensor shape fed to the session.
var InputShape = []int64{1, ImageSize, ImageSize, Channels}

// Prediction is the result for a single image.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
}
