// Package isdgo implements self-supervised representation learning by
// iterative similarity distillation (ISD).
//
// A trainable query encoder with a projection head and a momentum-updated
// key encoder embed two augmented views of the same image. A fixed-size
// rolling memory bank of past key embeddings provides reference anchors.
// The training signal is the batch-mean KL divergence between the
// temperature-scaled similarity distributions of the query and key
// embeddings over the bank; no labels are used anywhere.
//
// # Quick Start
//
//	model, err := isdgo.New("mlp-small", 3*32*32,
//	    isdgo.WithQueueSize(4096),
//	    isdgo.WithTemperature(0.02),
//	    isdgo.WithKeyMomentum(0.999),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	out, err := model.Forward(imQ, imK, batchSize)
//	if err != nil {
//	    panic(err)
//	}
//
//	kld := isdgo.NewKLDivLoss()
//	loss, grad, err := kld.Forward(out.SimQ, out.SimK, batchSize, model.QueueSize())
//	if err != nil {
//	    panic(err)
//	}
//	if err := model.Backward(out, grad, batchSize); err != nil {
//	    panic(err)
//	}
//	// ... optimizer step over model.TrainableParams()
//
// The train package wires the full epoch/step loop around this core; the
// cmd/isd-train binary exposes it as a CLI.
package isdgo
