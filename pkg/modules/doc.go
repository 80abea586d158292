// Package modules validates the provisioner module directory against a
// manifest's declared dependencies and repairs fixable gaps.
//
// Every environment needs the core modules (vpc, eks). Each declared
// dependency type adds one infrastructure module (rds, mq, elasticache,
// msk) and one access-policy module (eks-to-<module>-policy) expressing
// least-privilege connectivity from the cluster. Missing core modules
// are a hard failure; missing policy modules and unreferenced modules
// are soft failures with typed fix actions the Fixer can apply by
// inserting generated module blocks into the root configuration.
package modules
