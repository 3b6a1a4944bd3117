// Package hub publishes evaluation results as a dataset on the Hugging Face
// Hub.
//
// The batch is written as a JSON Lines shard under data/ next to a README.md
// dataset card, both in a single commit made through the hub commit API.
package hub
