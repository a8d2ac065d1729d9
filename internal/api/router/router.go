package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-compressor/internal/api/handlers/session"
)

func Setup(h *session.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/source", h.UploadSource)       // replace the source image
	api.PUT("/preprocess", h.SetPreprocessor) // shared preprocessing

	sides := api.Group("/sides/:side")
	sides.GET("", h.GetSide)                  // side state
	sides.PUT("/processor", h.SetProcessor)   // per-side processing
	sides.PUT("/encoder", h.SetEncoder)       // per-side encoder, null for none
	sides.GET("/artifact", h.GetSideArtifact) // current encoded bytes
	sides.POST("/publish", h.Publish)         // archive current artifact

	api.GET("/artifacts/:id", h.GetArtifact)       // published artifact bytes
	api.DELETE("/artifacts/:id", h.DeleteArtifact) // remove published artifact

	return r
}
